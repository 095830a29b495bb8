package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon version, uptime, and session count",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			result, err := conn.Call(cmd.Context(), "daemon.info", nil, nil)
			if err != nil {
				return err
			}
			info, ok := result.(map[string]any)
			if !ok {
				return fmt.Errorf("unexpected daemon.info result %T", result)
			}

			rows := [][]string{
				{"Version", stringField(info, "version")},
				{"Started", stringField(info, "started_at")},
				{"Uptime (s)", numberField(info, "uptime_seconds")},
				{"Sessions", numberField(info, "sessions")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func numberField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}
