package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/convoflow/internal/cli"
	"github.com/aretw0/convoflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convoflow",
	Short: "convoflow runs chat bot conversation flows",
	Long: `convoflow executes conversation flows (messages, buttons, inputs, conditions,
delays, API and AI calls) for chat bots, over HTTP, WhatsApp or the terminal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("flows", "", "Directory containing flow documents (overrides config)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address (overrides config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads the config file, .env and environment, then applies
// command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("flows"); dir != "" {
		cfg.FlowsDir = dir
	}
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		cfg.Redis.Addr = addr
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.NewLogger(cfg, debug)
}

// newApp builds the wired application for commands that run flows.
func newApp(cmd *cobra.Command) (*cli.App, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	app, err := cli.NewApp(cfg, newLogger(cmd, cfg))
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
