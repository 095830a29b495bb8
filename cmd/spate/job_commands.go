package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage download jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobStatusCommand(ctx))
	for _, op := range []string{"pause", "resume", "remove"} {
		jobCmd.AddCommand(newJobStateCommand(ctx, op))
	}
	return jobCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			result, err := conn.Call(cmd.Context(), "job.list", nil, nil)
			if err != nil {
				return err
			}
			views, ok := result.([]any)
			if !ok {
				if result == nil {
					views = nil
				} else {
					return fmt.Errorf("unexpected job.list result %T", result)
				}
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				job, ok := v.(map[string]any)
				if !ok {
					continue
				}
				rows = append(rows, []string{
					stringField(job, "job_id"),
					stringField(job, "name"),
					stringField(job, "state"),
					stringField(job, "added_at"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "State", "Added"}, rows))
			return nil
		},
	}
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var nameFlag string
	cmd := &cobra.Command{
		Use:   "add <uri>",
		Short: "Add a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			kwargs := map[string]any{"uri": args[0]}
			if nameFlag != "" {
				kwargs["name"] = nameFlag
			}
			result, err := conn.Call(cmd.Context(), "job.add", nil, kwargs)
			if err != nil {
				return err
			}
			if m, ok := result.(map[string]any); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", stringField(m, "job_id"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nameFlag, "name", "", "Display name for the job")
	return cmd
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			result, err := conn.Call(cmd.Context(), "job.status", []any{args[0]}, nil)
			if err != nil {
				return err
			}
			job, ok := result.(map[string]any)
			if !ok {
				return fmt.Errorf("unexpected job.status result %T", result)
			}
			rows := [][]string{
				{"ID", stringField(job, "job_id")},
				{"Name", stringField(job, "name")},
				{"State", stringField(job, "state")},
				{"Added", stringField(job, "added_at")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}

func newJobStateCommand(ctx *commandContext, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <job-id>",
		Short: fmt.Sprintf("%s a job", op),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := ctx.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			if _, err := conn.Call(cmd.Context(), "job."+op, []any{args[0]}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", op+"d", args[0])
			return nil
		},
	}
}
