package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dosanma1/octobuild/internal/config"
)

// Set via -ldflags "-X github.com/dosanma1/octobuild/internal/cmd.buildVersion=...".
var buildVersion = "dev"

var (
	rootDir      string
	settingsPath string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "octobuild",
	Short: "Build, sign and package the Octopus CLI",
	Long: `octobuild runs the build pipeline of the Octopus CLI distribution.

It calculates the version, compiles and tests the solution, publishes the
portable and self-contained binaries, signs them and packages everything
into zip, tar.gz and NuGet artifacts.`,
	Version:       buildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (default: nearest directory with build.yaml or .git)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Build settings file (default: <root>/build.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output, including tool output")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// projectRoot resolves --root or searches upwards from the working directory.
func projectRoot() (string, error) {
	if rootDir != "" {
		return filepath.Abs(rootDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return config.FindRoot(cwd)
}

func loadSettings(root string) (*config.Settings, error) {
	path := settingsPath
	if path == "" {
		path = filepath.Join(root, config.DefaultSettingsFile)
	}
	return config.LoadSettings(path)
}
