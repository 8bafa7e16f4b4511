package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/convoflow"
	"github.com/spf13/cobra"
)

var errInvalidFlows = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate [file|dir]...",
	Short: "Check flow documents for consistency",
	Long: `Parses each flow document and reports structural errors (START nodes,
dangling references, per-type configuration) and warnings.
Without arguments the configured flows directory is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			args = []string{cfg.FlowsDir}
		}
		paths, err := flowFiles(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no flow documents found in %s", strings.Join(args, ", "))
		}

		failed := 0
		for _, path := range paths {
			if !validateFile(cmd.OutOrStdout(), path) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d flows have errors", errInvalidFlows, failed, len(paths))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All flows are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateFile(w io.Writer, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "❌ %s: %v\n", path, err)
		return false
	}
	fv, err := convoflow.ParseFlow(data)
	if err != nil {
		fmt.Fprintf(w, "❌ %s: %v\n", path, err)
		return false
	}
	res := convoflow.Validate(fv)
	mark := "✅"
	if !res.IsValid {
		mark = "❌"
	}
	fmt.Fprintf(w, "%s %s (%d nodes)\n", mark, path, len(fv.Nodes))
	for _, issue := range res.Errors {
		fmt.Fprintf(w, "   error   %s\n", issue)
	}
	for _, issue := range res.Warnings {
		fmt.Fprintf(w, "   warning %s\n", issue)
	}
	return res.IsValid
}

// flowFiles expands directories into the flow documents they contain.
func flowFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if path != arg && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || name == "bots.yaml" {
				return nil
			}
			switch strings.ToLower(filepath.Ext(name)) {
			case ".yaml", ".yml", ".json":
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
