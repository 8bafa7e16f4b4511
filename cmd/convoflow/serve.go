package main

import (
	"context"

	"github.com/aretw0/convoflow/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the delay scheduler",
	Long: `Loads the flows directory and serves the webhook, simulator and session APIs
over HTTP. Paused sessions are resumed by the embedded scheduler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		logger := newLogger(cmd, cfg)

		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		if err := app.ListenAndServe(ctx); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped by signal", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides config)")
}
