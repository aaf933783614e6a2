package signing

import (
	"context"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/toolexec"
)

// Backend signs a batch of files, timestamping them with one authority.
type Backend interface {
	Name() string
	Sign(ctx context.Context, files []string, timestampURL string) error
}

// Description is embedded into every signature.
type Description struct {
	Text string
	URL  string
}

// LocalCertificate signs with signtool and a pfx certificate file.
type LocalCertificate struct {
	Runner          toolexec.Runner
	SignTool        string
	CertificatePath string
	Password        string
	Description     Description
}

func (b *LocalCertificate) Name() string { return "signtool" }

func (b *LocalCertificate) Sign(ctx context.Context, files []string, timestampURL string) error {
	args := []string{
		"sign",
		"/f", b.CertificatePath,
		"/p", b.Password,
		"/td", "sha256",
		"/d", b.Description.Text,
		"/du", b.Description.URL,
		"/tr", timestampURL,
	}
	args = append(args, files...)

	_, err := b.Runner.Run(ctx, toolexec.Command{
		Name:    b.SignTool,
		Args:    args,
		Secrets: []string{b.Password},
	})
	return err
}

// CloudKeyVault signs with azuresigntool using a certificate held in a key vault.
type CloudKeyVault struct {
	Runner        toolexec.Runner
	AzureSignTool string
	Vault         config.KeyVault
	Description   Description
}

func (b *CloudKeyVault) Name() string { return "azuresigntool" }

func (b *CloudKeyVault) Sign(ctx context.Context, files []string, timestampURL string) error {
	args := []string{
		"sign",
		"--azure-key-vault-url", b.Vault.URL,
		"--azure-key-vault-client-id", b.Vault.AppID,
		"--azure-key-vault-tenant-id", b.Vault.TenantID,
		"--azure-key-vault-client-secret", b.Vault.AppSecret,
		"--azure-key-vault-certificate", b.Vault.CertificateName,
		"--file-digest", "sha256",
		"--description", b.Description.Text,
		"--description-url", b.Description.URL,
		"--timestamp-rfc3161", timestampURL,
		"--timestamp-digest", "sha256",
	}
	args = append(args, files...)

	_, err := b.Runner.Run(ctx, toolexec.Command{
		Name:    b.AzureSignTool,
		Args:    args,
		Secrets: []string{b.Vault.AppSecret},
	})
	return err
}

// SelectBackend picks the cloud backend when any key vault value is
// configured and the local certificate otherwise.
func SelectBackend(vault config.KeyVault, local *LocalCertificate, cloud *CloudKeyVault) Backend {
	if vault.Empty() {
		return local
	}
	return cloud
}
