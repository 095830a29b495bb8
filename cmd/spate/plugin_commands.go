package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginCommand(ctx *commandContext) *cobra.Command {
	pluginCmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage daemon plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pluginCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known plugins and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			result, err := conn.Call(cmd.Context(), "plugin.list", nil, nil)
			if err != nil {
				return err
			}
			records, _ := result.([]any)
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				record, ok := r.(map[string]any)
				if !ok {
					continue
				}
				state := "disabled"
				if enabled, _ := record["enabled"].(bool); enabled {
					state = "enabled"
				}
				rows = append(rows, []string{
					stringField(record, "name"),
					stringField(record, "version"),
					state,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Version", "State"}, rows))
			return nil
		},
	})

	pluginCmd.AddCommand(newPluginToggleCommand(ctx, "enable"))
	pluginCmd.AddCommand(newPluginToggleCommand(ctx, "disable"))
	return pluginCmd
}

func newPluginToggleCommand(ctx *commandContext, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <plugin>",
		Short: fmt.Sprintf("%s a plugin", op),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			if _, err := conn.Call(cmd.Context(), "plugin."+op, []any{args[0]}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", op, args[0])
			return nil
		},
	}
}
