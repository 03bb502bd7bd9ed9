package cli

import (
	"github.com/spf13/cobra"

	"streak-alerts/internal/app"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the series once and alert if the streak just formed",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Check(cmd.Context(), app.CheckOptions{DryRun: checkDryRun})
		return err
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "打印告警内容而不发送")
}
