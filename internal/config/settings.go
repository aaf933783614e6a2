package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is looked up in the project root when --config is not given.
const DefaultSettingsFile = "build.yaml"

// Settings represents the optional build.yaml file describing the
// repository layout and the signing setup.
type Settings struct {
	Layout   Layout          `yaml:"layout"`
	Projects Projects        `yaml:"projects"`
	Signing  SigningSettings `yaml:"signing"`
	Tools    Tools           `yaml:"tools"`
}

// Layout holds directories relative to the project root.
type Layout struct {
	Source      string `yaml:"source"`
	Artifacts   string `yaml:"artifacts"`
	Publish     string `yaml:"publish"`
	Assets      string `yaml:"assets"`
	VersionFile string `yaml:"version_file"`
}

// Projects names the solution and projects the pipeline builds.
type Projects struct {
	Solution          string `yaml:"solution"`
	Octo              string `yaml:"octo"`
	OctopusCli        string `yaml:"octopus_cli"`
	DotNetOctoCli     string `yaml:"dotnet_octo_cli"`
	PortableFramework string `yaml:"portable_framework"`
	RuntimeFramework  string `yaml:"runtime_framework"`
	Nuspec            string `yaml:"nuspec"`
	ArchivePrefix     string `yaml:"archive_prefix"`
}

// SigningSettings configures the code signing subsystem.
type SigningSettings struct {
	TimestampAuthorities []string `yaml:"timestamp_authorities"`
	Patterns             []string `yaml:"patterns"`
	Description          string   `yaml:"description"`
	DescriptionURL       string   `yaml:"description_url"`
}

// Tools holds executable names or paths. Relative paths containing a
// separator are resolved against the project root.
type Tools struct {
	Dotnet        string `yaml:"dotnet"`
	NuGet         string `yaml:"nuget"`
	OctoVersion   string `yaml:"octoversion"`
	SignTool      string `yaml:"signtool"`
	AzureSignTool string `yaml:"azuresigntool"`
}

// DefaultTimestampAuthorities are tried in order when signing.
var DefaultTimestampAuthorities = []string{
	"http://timestamp.comodoca.com/rfc3161",
	"http://timestamp.globalsign.com/tsa/r6advanced1",
	"http://timestamp.digicert.com",
	"http://timestamp.apple.com/ts01",
	"http://tsa.starfieldtech.com",
	"http://www.startssl.com/timestamp",
	"http://timestamp.verisign.com/scripts/timstamp.dll",
	"http://timestamp.globalsign.com/scripts/timestamp.dll",
	"https://rfc3161timestamp.globalsign.com/advanced",
}

// DefaultSignPatterns select the binaries that get signed.
var DefaultSignPatterns = []string{
	"Octopus.*.dll",
	"octo.dll",
	"octo.exe",
	"dotnet-octo.dll",
	"octo*.dll",
	"Octo*.dll",
}

// LoadSettings reads build.yaml. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// DefaultSettings returns the settings used without a build.yaml.
func DefaultSettings() *Settings {
	var s Settings
	s.applyDefaults()
	return &s
}

// Validate checks the settings for values the pipeline cannot work with.
func (s *Settings) Validate() error {
	if len(s.Signing.TimestampAuthorities) == 0 {
		return &ValidationError{Field: "signing.timestamp_authorities", Msg: "at least one authority is required"}
	}
	for _, raw := range s.Signing.TimestampAuthorities {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "signing.timestamp_authorities", Msg: fmt.Sprintf("invalid url %q", raw)}
		}
	}
	for _, p := range s.Signing.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return &ValidationError{Field: "signing.patterns", Msg: fmt.Sprintf("invalid pattern %q", p)}
		}
	}
	if s.Layout.Artifacts == s.Layout.Publish {
		return &ValidationError{Field: "layout.artifacts", Msg: "must differ from layout.publish"}
	}
	return nil
}

func (s *Settings) applyDefaults() {
	setDefault(&s.Layout.Source, "source")
	setDefault(&s.Layout.Artifacts, "artifacts")
	setDefault(&s.Layout.Publish, "publish")
	setDefault(&s.Layout.Assets, "BuildAssets")
	setDefault(&s.Layout.VersionFile, "octoversion.txt")

	setDefault(&s.Projects.Solution, "source/OctopusCLI.sln")
	setDefault(&s.Projects.Octo, "source/Octo/Octo.csproj")
	setDefault(&s.Projects.OctopusCli, "source/Octopus.Cli")
	setDefault(&s.Projects.DotNetOctoCli, "source/Octopus.DotNet.Cli")
	setDefault(&s.Projects.PortableFramework, "netcoreapp3.1")
	setDefault(&s.Projects.RuntimeFramework, "net6.0")
	setDefault(&s.Projects.Nuspec, "OctopusTools.nuspec")
	setDefault(&s.Projects.ArchivePrefix, "OctopusTools")

	if len(s.Signing.TimestampAuthorities) == 0 {
		s.Signing.TimestampAuthorities = append([]string(nil), DefaultTimestampAuthorities...)
	}
	if len(s.Signing.Patterns) == 0 {
		s.Signing.Patterns = append([]string(nil), DefaultSignPatterns...)
	}
	setDefault(&s.Signing.Description, "Octopus CLI")
	setDefault(&s.Signing.DescriptionURL, "https://octopus.com")

	setDefault(&s.Tools.Dotnet, "dotnet")
	setDefault(&s.Tools.NuGet, "nuget")
	setDefault(&s.Tools.OctoVersion, "octoversion")
	setDefault(&s.Tools.SignTool, "certificates/signtool.exe")
	setDefault(&s.Tools.AzureSignTool, "azuresigntool")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}
