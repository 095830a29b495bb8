package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var addressFlag string
	var configFlag string
	var usernameFlag string
	var passwordFlag string

	ctx := newCommandContext(&addressFlag, &configFlag, &usernameFlag, &passwordFlag)

	rootCmd := &cobra.Command{
		Use:           "spate",
		Short:         "Control CLI for the spated daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "", "Daemon address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&usernameFlag, "username", "u", "", "Account username (defaults to the local account)")
	rootCmd.PersistentFlags().StringVarP(&passwordFlag, "password", "p", "", "Account password")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobCommand(ctx))
	rootCmd.AddCommand(newPluginCommand(ctx))
	rootCmd.AddCommand(newEventsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
