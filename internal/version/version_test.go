package version

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dosanma1/octobuild/internal/toolexec"
	"github.com/dosanma1/octobuild/internal/toolexec/toolexectest"
)

func toolReturning(stdout string) *toolexectest.Recorder {
	return &toolexectest.Recorder{Handler: func(toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{Stdout: stdout}, nil
	}}
}

func TestResolveUsesCacheVerbatim(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "octoversion.txt")
	require.NoError(t, os.WriteFile(cache, []byte("5.0.0-beta"), 0644))
	runner := &toolexectest.Recorder{}

	r := &Resolver{CachePath: cache, Tool: "octoversion", Runner: runner}
	info, err := r.Resolve(context.Background())

	require.NoError(t, err)
	require.Equal(t, "5.0.0-beta", info.FullSemVer)
	require.True(t, info.FromCache)
	require.Empty(t, runner.Commands())
}

func TestResolveAppendsRunNumberOnServerPreRelease(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "octoversion.txt")
	runner := toolReturning(`{"FullSemVer":"1.2.3-feature-x","PreReleaseTag":"feature-x"}`)
	var notices bytes.Buffer

	r := &Resolver{
		CachePath: cache,
		Tool:      "octoversion",
		Branch:    "feature/x",
		RunNumber: "7",
		Runner:    runner,
		Notices:   &notices,
	}
	info, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.2.3-feature-x-7", info.FullSemVer)

	cached, err := os.ReadFile(cache)
	require.NoError(t, err)
	require.Equal(t, "1.2.3-feature-x-7", string(cached))

	require.Equal(t, "##[notice]Release version number: 1.2.3-feature-x-7\n::set-output name=version::1.2.3-feature-x-7\n", notices.String())

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "octoversion", cmds[0].Name)
	require.Equal(t, []string{
		"--CurrentBranch", "feature/x",
		"--NonPreReleaseTagsRegex", "refs/tags/[^-]*$",
		"--OutputFormats", "Json",
	}, cmds[0].Args)
}

func TestResolveLocalBuildKeepsVersionAndDefaultsBranch(t *testing.T) {
	runner := toolReturning("Calculating...\n{\"FullSemVer\":\"1.2.3-feature-x\",\"PreReleaseTag\":\"feature-x\"}\n")

	r := &Resolver{
		CachePath: filepath.Join(t.TempDir(), "octoversion.txt"),
		Tool:      "octoversion",
		RunNumber: "7",
		IsLocal:   true,
		Runner:    runner,
	}
	info, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.2.3-feature-x", info.FullSemVer)
	require.Equal(t, LocalBranch, runner.Commands()[0].Args[1])
}

func TestResolveReleaseVersionHasNoSuffix(t *testing.T) {
	r := &Resolver{
		CachePath: filepath.Join(t.TempDir(), "octoversion.txt"),
		RunNumber: "7",
		Runner:    toolReturning(`{"FullSemVer":"8.1.0","PreReleaseTag":""}`),
	}
	info, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "8.1.0", info.FullSemVer)
}

func TestResolveToolFailureIsFatal(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "octoversion.txt")
	boom := errors.New("exit status 1")
	r := &Resolver{
		CachePath: cache,
		Runner: &toolexectest.Recorder{Handler: func(toolexec.Command) (toolexec.Result, error) {
			return toolexec.Result{}, boom
		}},
	}

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, boom)
	_, statErr := os.Stat(cache)
	require.True(t, os.IsNotExist(statErr))
}

func TestParseRejectsBadOutput(t *testing.T) {
	cases := map[string]string{
		"no json":       "nothing here",
		"missing field": `{"PreReleaseTag":"x"}`,
		"empty version": `{"FullSemVer":""}`,
		"not semver":    `{"FullSemVer":"one.two"}`,
		"wrong type":    `{"FullSemVer":123}`,
		"truncated":     `{"FullSemVer":"1.0.0"`,
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(out))
			require.Error(t, err)
		})
	}
}

func TestParseNullPreReleaseTag(t *testing.T) {
	info, err := Parse([]byte(`{"FullSemVer":"1.0.0","PreReleaseTag":null}`))
	require.NoError(t, err)
	require.Equal(t, "1.0.0", info.FullSemVer)
	require.Empty(t, info.PreReleaseTag)
}

func TestMemoResolvesOnce(t *testing.T) {
	runner := toolReturning(`{"FullSemVer":"1.0.0"}`)
	m := NewMemo(&Resolver{
		CachePath: filepath.Join(t.TempDir(), "octoversion.txt"),
		Runner:    runner,
	})

	for i := 0; i < 3; i++ {
		info, err := m.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, "1.0.0", info.FullSemVer)
	}
	require.Len(t, runner.Commands(), 1)
}
