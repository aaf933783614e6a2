package toolexec

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHint(t *testing.T) {
	cases := []struct {
		name   string
		output string
		err    error
		want   string
	}{
		{
			name: "missing tool",
			err:  fmt.Errorf("exec: %w", exec.ErrNotFound),
			want: "azuresigntool was not found; install it or set its path under tools in build.yaml",
		},
		{
			name:   "compile error",
			output: `/src/Octo/Program.cs(12,5): error CS1002: ; expected [/src/Octo/Octo.csproj]`,
			want:   "compilation failed in Program.cs (CS1002)",
		},
		{
			name:   "test failure",
			output: "Failed!  - Failed:     3, Passed:   120, Skipped:     0, Total:   123",
			want:   "3 test(s) failed; results are in artifacts/TestResults",
		},
		{
			name:   "sdk",
			output: "error NETSDK1045: The current .NET SDK does not support targeting .NET 6.0.",
			want:   ".NET SDK error NETSDK1045; check the installed SDK supports the target framework",
		},
		{
			name:   "nuget",
			output: "error NU1101: Unable to find package Octopus.Client.",
			want:   "NuGet error NU1101; check package sources and the nuspec",
		},
		{
			name:   "timestamp",
			output: "SignTool Error: The specified timestamp server either could not be reached or returned an invalid response.",
			want:   "the timestamp authority did not answer",
		},
		{
			name:   "unknown",
			output: "something else",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Hint("azuresigntool", tc.output, tc.err))
		})
	}
}

func TestToolErrorFallsBackToStdoutErrorLines(t *testing.T) {
	te := newToolError(Command{Name: "dotnet"}, errors.New("exit status 1"), "Restoring...\n  Program.cs(1,1): error CS0246: missing type\nBuild FAILED.\n", "")
	require.Equal(t, "Program.cs(1,1): error CS0246: missing type", te.Stderr)
	require.Contains(t, te.Error(), "(compilation failed in Program.cs (CS0246))")
}
