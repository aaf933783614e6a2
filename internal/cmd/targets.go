package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/pipeline"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the build targets and their dependencies",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	settings, err := loadSettings(root)
	if err != nil {
		return err
	}

	params := config.ParametersFromEnv(root, os.LookupEnv, false)
	graph, err := pipeline.New(params, settings, pipeline.Options{}).Graph()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range graph.Names() {
		t, _ := graph.Target(name)
		marker := " "
		if name == pipeline.Default {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-22s %s\n", marker, name, t.Description)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(out, "  %-22s ↳ %s\n", "", strings.Join(t.DependsOn, ", "))
		}
	}
	return nil
}
