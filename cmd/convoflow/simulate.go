package main

import (
	"context"
	"os"

	"github.com/aretw0/convoflow/internal/cli"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <bot-id>",
	Short: "Chat with a bot in the terminal",
	Long: `Runs a test conversation against the draft versions of the bot's flows.
Simulated sessions never reach the real channel. Type 'exit' to quit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		flowID, _ := cmd.Flags().GetString("flow")
		address, _ := cmd.Flags().GetString("address")
		headless, _ := cmd.Flags().GetBool("headless")
		wait, _ := cmd.Flags().GetBool("wait-delays")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return app.Simulate(ctx, cli.SimulateOptions{
			BotID:      args[0],
			FlowID:     flowID,
			Address:    address,
			Headless:   headless,
			WaitDelays: wait,
			Input:      os.Stdin,
			Output:     os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("flow", "", "Start in this flow instead of the bot's main flow")
	simulateCmd.Flags().String("address", "", "End-user address of the test session")
	simulateCmd.Flags().Bool("headless", false, "Plain output without banner or markdown rendering")
	simulateCmd.Flags().Bool("wait-delays", false, "Let the scheduler resume delays in real time")
}
