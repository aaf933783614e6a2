package signing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/toolexec"
	"github.com/dosanma1/octobuild/internal/toolexec/toolexectest"
)

type attempt struct {
	files []string
	url   string
}

type fakeBackend struct {
	attempts []attempt
	// fail decides per url whether signing fails.
	fail func(url string) error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Sign(_ context.Context, files []string, url string) error {
	f.attempts = append(f.attempts, attempt{files: files, url: url})
	if f.fail != nil {
		return f.fail(url)
	}
	return nil
}

func (f *fakeBackend) urls() []string {
	var urls []string
	for _, a := range f.attempts {
		urls = append(urls, a.url)
	}
	return urls
}

var authorities = []string{"http://tsa1", "http://tsa2", "http://tsa3"}

func TestSignStopsAtFirstSuccess(t *testing.T) {
	b := &fakeBackend{fail: func(url string) error {
		if url == "http://tsa1" {
			return errors.New("timeout")
		}
		return nil
	}}
	s := &Signer{Backend: b, Authorities: authorities}

	require.NoError(t, s.Sign(context.Background(), []string{"a.dll", "b.exe"}))
	require.Equal(t, []string{"http://tsa1", "http://tsa2"}, b.urls())
	for _, a := range b.attempts {
		require.Equal(t, []string{"a.dll", "b.exe"}, a.files)
	}
}

func TestSignTriesAuthoritiesInOrderUntilThird(t *testing.T) {
	b := &fakeBackend{fail: func(url string) error {
		if url == "http://tsa3" {
			return nil
		}
		return errors.New("rejected")
	}}
	s := &Signer{Backend: b, Authorities: authorities}

	require.NoError(t, s.Sign(context.Background(), []string{"a.dll"}))
	require.Equal(t, authorities, b.urls())
}

func TestSignSurfacesOnlyLastError(t *testing.T) {
	errs := map[string]error{}
	b := &fakeBackend{fail: func(url string) error {
		err := fmt.Errorf("%s rejected", url)
		errs[url] = err
		return err
	}}
	s := &Signer{Backend: b, Authorities: authorities}

	err := s.Sign(context.Background(), []string{"a.dll"})

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, errs["http://tsa3"])
	require.NotErrorIs(t, err, errs["http://tsa1"])
	require.Equal(t, authorities, b.urls())
}

func TestSignLocalBuildIsNoop(t *testing.T) {
	b := &fakeBackend{}
	s := &Signer{Backend: b, Authorities: authorities, Local: true}

	require.NoError(t, s.Sign(context.Background(), []string{"a.dll"}))
	require.Empty(t, b.attempts)
}

func TestSignWithoutFilesIsNoop(t *testing.T) {
	b := &fakeBackend{}
	s := &Signer{Backend: b, Authorities: authorities}

	require.NoError(t, s.Sign(context.Background(), nil))
	require.Empty(t, b.attempts)
}

func TestSignWithoutAuthorities(t *testing.T) {
	s := &Signer{Backend: &fakeBackend{}}
	require.ErrorIs(t, s.Sign(context.Background(), []string{"a.dll"}), ErrNoAuthorities)
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		path := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(n), 0644))
	}
}

func TestDiscoverMatchesRecursivelyWithoutDuplicates(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"octo.dll",
		"octo.exe",
		"Octopus.Client.dll",
		"runtimes/win/octo.dll",
		"Newtonsoft.Json.dll",
		"octo.pdb",
	)

	files, err := Discover(root, config.DefaultSignPatterns)
	require.NoError(t, err)

	rel := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	require.Equal(t, []string{
		"Octopus.Client.dll",
		"octo.dll",
		"runtimes/win/octo.dll",
		"octo.exe",
	}, rel)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), config.DefaultSignPatterns)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSignDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "octo.dll", "readme.txt")
	b := &fakeBackend{}
	s := &Signer{Backend: b, Authorities: authorities, Patterns: config.DefaultSignPatterns}

	require.NoError(t, s.SignDirectory(context.Background(), root))
	require.Len(t, b.attempts, 1)
	require.Equal(t, []string{filepath.Join(root, "octo.dll")}, b.attempts[0].files)
}

func TestSelectBackend(t *testing.T) {
	local := &LocalCertificate{}
	cloud := &CloudKeyVault{}

	cases := []struct {
		name  string
		vault config.KeyVault
		want  Backend
	}{
		{"all empty", config.KeyVault{}, local},
		{"tenant only", config.KeyVault{TenantID: "t"}, local},
		{"url", config.KeyVault{URL: "https://vault"}, cloud},
		{"app id", config.KeyVault{AppID: "id"}, cloud},
		{"secret", config.KeyVault{AppSecret: "s"}, cloud},
		{"certificate", config.KeyVault{CertificateName: "c"}, cloud},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Same(t, tc.want, SelectBackend(tc.vault, local, cloud))
		})
	}
}

func TestLocalCertificateArgs(t *testing.T) {
	rec := &toolexectest.Recorder{}
	b := &LocalCertificate{
		Runner:          rec,
		SignTool:        "certificates/signtool.exe",
		CertificatePath: "certificates/OctopusDevelopment.pfx",
		Password:        "Password01!",
		Description:     Description{Text: "Octopus CLI", URL: "https://octopus.com"},
	}

	require.NoError(t, b.Sign(context.Background(), []string{"a.dll", "b.exe"}, "http://timestamp.digicert.com"))

	cmds := rec.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "certificates/signtool.exe", cmds[0].Name)
	require.Equal(t, []string{
		"sign",
		"/f", "certificates/OctopusDevelopment.pfx",
		"/p", "Password01!",
		"/td", "sha256",
		"/d", "Octopus CLI",
		"/du", "https://octopus.com",
		"/tr", "http://timestamp.digicert.com",
		"a.dll", "b.exe",
	}, cmds[0].Args)
	require.Equal(t, []string{"Password01!"}, cmds[0].Secrets)
}

func TestCloudKeyVaultArgs(t *testing.T) {
	rec := &toolexectest.Recorder{Handler: func(toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{}, errors.New("vault unavailable")
	}}
	b := &CloudKeyVault{
		Runner:        rec,
		AzureSignTool: "azuresigntool",
		Vault: config.KeyVault{
			URL:             "https://vault",
			AppID:           "app",
			AppSecret:       "secret",
			CertificateName: "cert",
			TenantID:        "tenant",
		},
		Description: Description{Text: "Octopus CLI", URL: "https://octopus.com"},
	}

	err := b.Sign(context.Background(), []string{"a.dll"}, "http://tsa")
	require.EqualError(t, err, "vault unavailable")

	cmd := rec.Commands()[0]
	require.Equal(t, []string{
		"sign",
		"--azure-key-vault-url", "https://vault",
		"--azure-key-vault-client-id", "app",
		"--azure-key-vault-tenant-id", "tenant",
		"--azure-key-vault-client-secret", "secret",
		"--azure-key-vault-certificate", "cert",
		"--file-digest", "sha256",
		"--description", "Octopus CLI",
		"--description-url", "https://octopus.com",
		"--timestamp-rfc3161", "http://tsa",
		"--timestamp-digest", "sha256",
		"a.dll",
	}, cmd.Args)
	require.Contains(t, cmd.String(), "--azure-key-vault-client-secret ****")
}
