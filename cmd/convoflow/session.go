package main

import (
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, and remove sessions kept in the Redis store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.ListSessions(cmd.Context(), cmd.OutOrStdout())
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print a session with its message, execution and AI usage logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.InspectSession(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.RemoveSessions(cmd.Context(), cmd.OutOrStdout(), args...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
