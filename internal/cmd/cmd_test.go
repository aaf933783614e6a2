package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/target"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"target failure", fmt.Errorf("run: %w", &target.TargetError{Target: "Compile", Err: errors.New("boom")}), ExitTarget},
		{"validation", fmt.Errorf("invalid: %w", &config.ValidationError{Field: "configuration"}), ExitUsage},
		{"unknown target", &target.GraphError{Kind: target.ErrUnknownTarget, Msg: "Nope"}, ExitUsage},
		{"other", errors.New("disk full"), ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestRunPlanPrintsOrder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultSettingsFile), []byte("{}\n"), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "Test", "--plan", "--skip", "Clean", "--root", root})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		runPlanOnly = false
		runSkip = nil
		rootDir = ""
	})

	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "📋 Plan for Test:\n  1. CalculateVersion\n  2. Compile\n  3. Test\n", out.String())
}

func TestTargetsListsDefault(t *testing.T) {
	root := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"targets", "--root", root})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootDir = ""
	})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "* Default")
	require.Contains(t, out.String(), "PackOctopusToolsNuget, PackDotNetOctoNuget, Zip")
}

func TestRunUnknownTarget(t *testing.T) {
	root := t.TempDir()
	rootCmd.SetArgs([]string{"run", "Deploy", "--plan", "--root", root})
	t.Cleanup(func() {
		runPlanOnly = false
		rootDir = ""
	})

	err := rootCmd.Execute()
	require.ErrorIs(t, err, target.ErrUnknownTarget)
	require.Equal(t, ExitUsage, ExitCode(err))
}
