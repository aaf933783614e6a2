// Package config resolves build parameters and the build.yaml settings.
//
// Parameter precedence: CLI flag > process environment > .env file > default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Legacy environment variable names. They match the parameter names used by
// the CI definitions, so existing pipelines keep working.
const (
	EnvBranch                     = "OCTOVERSION_CurrentBranch"
	EnvConfiguration              = "Configuration"
	EnvRunNumber                  = "RunNumber"
	EnvSigningCertificatePath     = "SigningCertificatePath"
	EnvSigningCertificatePassword = "SigningCertificatePassword"
	EnvKeyVaultURL                = "AzureKeyVaultUrl"
	EnvKeyVaultAppID              = "AzureKeyVaultAppId"
	EnvKeyVaultAppSecret          = "AzureKeyVaultAppSecret"
	EnvKeyVaultCertificateName    = "AzureKeyVaultCertificateName"
	EnvKeyVaultTenantID           = "AzureKeyVaultTenantId"
)

// EnvPrefix prefixes the environment variable of every run flag.
const EnvPrefix = "OCTOBUILD_"

// Run flag names.
const (
	FlagConfiguration              = "configuration"
	FlagSigningCertificatePath     = "signing-certificate-path"
	FlagSigningCertificatePassword = "signing-certificate-password"
	FlagBranch                     = "branch"
	FlagRunNumber                  = "run-number"
	FlagKeyVaultURL                = "azure-keyvault-url"
	FlagKeyVaultAppID              = "azure-keyvault-app-id"
	FlagKeyVaultAppSecret          = "azure-keyvault-app-secret"
	FlagKeyVaultCertificateName    = "azure-keyvault-certificate-name"
	FlagKeyVaultTenantID           = "azure-keyvault-tenant-id"
)

// EnvName returns the environment variable backing a run flag,
// e.g. OCTOBUILD_RUN_NUMBER for run-number.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Build configurations.
const (
	Debug   = "Debug"
	Release = "Release"
)

const defaultCertificatePassword = "Password01!"

// ciMarkers are environment variables set by the build servers we run on.
var ciMarkers = []string{"TF_BUILD", "GITHUB_ACTIONS", "TEAMCITY_VERSION", "JENKINS_URL", "CI"}

// Parameters are the per-invocation inputs of a build.
type Parameters struct {
	RootDir                    string
	Configuration              string
	SigningCertificatePath     string
	SigningCertificatePassword string
	BranchName                 string
	RunNumber                  string
	KeyVault                   KeyVault
	IsLocalBuild               bool
}

// KeyVault holds the cloud key vault signing credentials.
type KeyVault struct {
	URL             string
	AppID           string
	AppSecret       string
	CertificateName string
	TenantID        string
}

// Empty reports whether none of the values selecting cloud signing are set.
// The tenant id alone does not select the cloud backend.
func (k KeyVault) Empty() bool {
	return k.URL == "" && k.AppID == "" && k.AppSecret == "" && k.CertificateName == ""
}

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads <root>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(root string) error {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ParametersFromEnv builds the parameters from the environment, applying
// defaults for anything unset. Each parameter reads OCTOBUILD_<FLAG> first and
// falls back to its legacy name. forceCI marks the build as a server build.
func ParametersFromEnv(root string, lookup LookupFunc, forceCI bool) Parameters {
	get := func(flag, legacy string) string {
		if v, ok := lookup(EnvName(flag)); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		v, _ := lookup(legacy)
		return strings.TrimSpace(v)
	}

	p := Parameters{
		RootDir:                    root,
		Configuration:              get(FlagConfiguration, EnvConfiguration),
		SigningCertificatePath:     get(FlagSigningCertificatePath, EnvSigningCertificatePath),
		SigningCertificatePassword: get(FlagSigningCertificatePassword, EnvSigningCertificatePassword),
		BranchName:                 get(FlagBranch, EnvBranch),
		RunNumber:                  get(FlagRunNumber, EnvRunNumber),
		KeyVault: KeyVault{
			URL:             get(FlagKeyVaultURL, EnvKeyVaultURL),
			AppID:           get(FlagKeyVaultAppID, EnvKeyVaultAppID),
			AppSecret:       get(FlagKeyVaultAppSecret, EnvKeyVaultAppSecret),
			CertificateName: get(FlagKeyVaultCertificateName, EnvKeyVaultCertificateName),
			TenantID:        get(FlagKeyVaultTenantID, EnvKeyVaultTenantID),
		},
		IsLocalBuild: !forceCI && !onBuildServer(lookup),
	}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills in values that depend on other parameters.
func (p *Parameters) ApplyDefaults() {
	if p.Configuration == "" {
		p.Configuration = Debug
		if !p.IsLocalBuild {
			p.Configuration = Release
		}
	}
	if p.SigningCertificatePath == "" {
		p.SigningCertificatePath = filepath.Join(p.RootDir, "certificates", "OctopusDevelopment.pfx")
	}
	if p.SigningCertificatePassword == "" {
		p.SigningCertificatePassword = defaultCertificatePassword
	}
}

// Validate checks the parameters.
func (p *Parameters) Validate() error {
	if p.RootDir == "" {
		return &ValidationError{Field: "root", Msg: "is required"}
	}
	if p.Configuration != Debug && p.Configuration != Release {
		return &ValidationError{Field: "configuration", Msg: fmt.Sprintf("must be %s or %s, got %q", Debug, Release, p.Configuration)}
	}
	return nil
}

func onBuildServer(lookup LookupFunc) bool {
	for _, key := range ciMarkers {
		if v, ok := lookup(key); ok && v != "" && !strings.EqualFold(v, "false") {
			return true
		}
	}
	return false
}

// FindRoot walks up from dir looking for build.yaml or a .git entry.
// It returns dir itself when neither is found.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for current := abs; ; {
		for _, marker := range []string{DefaultSettingsFile, ".git"} {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		current = parent
	}
}
