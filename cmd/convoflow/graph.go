package main

import (
	"fmt"
	"os"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <flow-file>",
	Short: "Export a flow as a Mermaid diagram",
	Long: `Reads a flow document and outputs a Mermaid diagram (graph TD). With
--session the path a stored session executed is highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			app, _, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.SessionGraph(cmd.Context(), cmd.OutOrStdout(), sessionID)
		}
		if len(args) == 0 {
			return fmt.Errorf("a flow file or --session is required")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fv, err := convoflow.ParseFlow(data)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(fv, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the path of a stored session")
}
