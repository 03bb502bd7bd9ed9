package main

import "streak-alerts/internal/cli"

func main() {
	cli.Execute()
}
