package toolexec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutorCapturesStdoutAndLogsStderrAsWarnings(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	var logs bytes.Buffer
	e := NewExecutor(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	res, err := e.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo '{\"FullSemVer\":\"1.0.0\"}'; echo 'careful' >&2"},
	})
	require.NoError(t, err)
	require.Equal(t, "{\"FullSemVer\":\"1.0.0\"}\n", res.Stdout)
	require.Contains(t, logs.String(), "level=WARN msg=careful")
}

func TestExecutorReportsExitCodeAndStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	e := NewExecutor(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	_, err := e.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo 'bad password hunter2' >&2; exit 3"},
		Secrets: []string{"hunter2"},
	})

	var te *ToolError
	require.True(t, errors.As(err, &te))
	require.Equal(t, 3, te.ExitCode)
	require.Equal(t, "bad password ****", te.Stderr)
	require.Equal(t, "sh exited with code 3: bad password ****", err.Error())
}

func TestExecutorMissingTool(t *testing.T) {
	e := NewExecutor(nil)
	_, err := e.Run(context.Background(), Command{Name: "octobuild-no-such-tool"})

	var te *ToolError
	require.True(t, errors.As(err, &te))
	require.Equal(t, -1, te.ExitCode)
}

func TestCommandStringMasksSecrets(t *testing.T) {
	c := Command{
		Name:    "signtool",
		Args:    []string{"sign", "/p", "Password01!", "/d", "Octopus CLI"},
		Secrets: []string{"Password01!"},
	}
	require.Equal(t, `signtool sign /p **** /d "Octopus CLI"`, c.String())
}

func TestCommandStringKeepsArgumentsContainingSecret(t *testing.T) {
	c := Command{
		Name:    "azuresigntool",
		Args:    []string{"sign", "--azure-key-vault-client-secret", "secret", "--description", "a secret tool"},
		Secrets: []string{"secret"},
	}
	require.Equal(t, `azuresigntool sign --azure-key-vault-client-secret **** --description "a secret tool"`, c.String())
}

func TestRedactMasksSecretInsideOutput(t *testing.T) {
	require.Equal(t, "login with **** failed", Redact("login with Password01! failed", []string{"", "Password01!"}))
}

func TestLineWriterSplitsAcrossWrites(t *testing.T) {
	var got []string
	w := &lineWriter{emit: func(s string) { got = append(got, s) }}

	_, _ = w.Write([]byte("first\r\nsec"))
	_, _ = w.Write([]byte("ond\n\nthird"))
	w.flush()

	require.Equal(t, []string{"first", "second", "third"}, got)
}
