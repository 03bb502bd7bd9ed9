package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"streak-alerts/internal/app"
	"streak-alerts/internal/series"
)

var (
	simulateValues string
	simulateEnd    string
	simulateDryRun bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "用给定收盘价序列模拟一次判定与推送",
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseValues(simulateValues)
		if err != nil {
			return err
		}

		opts := app.SimulateOptions{Values: values, DryRun: simulateDryRun}
		if simulateEnd != "" {
			end, err := series.ParseDate(simulateEnd)
			if err != nil {
				return fmt.Errorf("invalid --end value: %w", err)
			}
			opts.End = end
		}

		_, err = getApp().SimulateAlert(cmd.Context(), opts)
		return err
	},
}

func parseValues(raw string) ([]decimal.Decimal, error) {
	parts := lo.Compact(lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
	if len(parts) == 0 {
		return nil, errors.New("--values 不能为空")
	}

	values := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		v, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateValues, "values", "", "逗号分隔的收盘价, 按时间先后排列")
	simulateCmd.Flags().StringVar(&simulateEnd, "end", "", "最后一个值对应的日期 (默认今天)")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "打印告警内容而不发送")
}
