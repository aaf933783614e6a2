// Package pipeline declares the build targets of the CLI distribution and
// wires them to the version, dotnet, signing and archive components.
package pipeline

import (
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dosanma1/octobuild/internal/archive"
	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/dotnet"
	"github.com/dosanma1/octobuild/internal/signing"
	"github.com/dosanma1/octobuild/internal/target"
	"github.com/dosanma1/octobuild/internal/toolexec"
	"github.com/dosanma1/octobuild/internal/version"
)

// Target names.
const (
	Clean                 = "Clean"
	CalculateVersion      = "CalculateVersion"
	Compile               = "Compile"
	Test                  = "Test"
	DotnetPublish         = "DotnetPublish"
	Zip                   = "Zip"
	PackOctopusToolsNuget = "PackOctopusToolsNuget"
	PackDotNetOctoNuget   = "PackDotNetOctoNuget"
	Default               = "Default"
)

// Options carries the runtime collaborators of a Build.
type Options struct {
	Runner toolexec.Runner
	Logger *slog.Logger
	// Out receives CI notices.
	Out io.Writer
	// GOOS decides platform-only targets. Defaults to runtime.GOOS.
	GOOS     string
	Progress bool
}

// Build holds everything the targets share for one invocation.
type Build struct {
	params   config.Parameters
	settings *config.Settings
	goos     string
	logger   *slog.Logger

	version  *version.Memo
	dotnet   *dotnet.CLI
	signer   *signing.Signer
	packager *archive.Packager
}

// New assembles a Build.
func New(params config.Parameters, settings *config.Settings, opts Options) *Build {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Runner == nil {
		opts.Runner = toolexec.NewExecutor(opts.Logger)
	}

	b := &Build{
		params:   params,
		settings: settings,
		goos:     opts.GOOS,
		logger:   opts.Logger,
	}

	b.version = version.NewMemo(&version.Resolver{
		CachePath: b.path(settings.Layout.VersionFile),
		Tool:      b.tool(settings.Tools.OctoVersion),
		Branch:    params.BranchName,
		RunNumber: params.RunNumber,
		IsLocal:   params.IsLocalBuild,
		Runner:    opts.Runner,
		Notices:   opts.Out,
		Logger:    opts.Logger,
	})

	b.dotnet = &dotnet.CLI{
		Runner: opts.Runner,
		Dotnet: b.tool(settings.Tools.Dotnet),
		NuGet:  b.tool(settings.Tools.NuGet),
		Dir:    params.RootDir,
	}

	desc := signing.Description{Text: settings.Signing.Description, URL: settings.Signing.DescriptionURL}
	local := &signing.LocalCertificate{
		Runner:          opts.Runner,
		SignTool:        b.tool(settings.Tools.SignTool),
		CertificatePath: params.SigningCertificatePath,
		Password:        params.SigningCertificatePassword,
		Description:     desc,
	}
	cloud := &signing.CloudKeyVault{
		Runner:        opts.Runner,
		AzureSignTool: b.tool(settings.Tools.AzureSignTool),
		Vault:         params.KeyVault,
		Description:   desc,
	}
	b.signer = &signing.Signer{
		Backend:     signing.SelectBackend(params.KeyVault, local, cloud),
		Authorities: settings.Signing.TimestampAuthorities,
		Patterns:    settings.Signing.Patterns,
		Local:       params.IsLocalBuild,
		Logger:      opts.Logger,
	}

	b.packager = &archive.Packager{Progress: opts.Progress, Logger: opts.Logger}
	return b
}

// Graph builds the validated target graph.
func (b *Build) Graph() (*target.Graph, error) {
	return target.NewGraph(b.Targets()...)
}

// Targets declares the build targets.
func (b *Build) Targets() []*target.Target {
	return []*target.Target{
		{
			Name:        Clean,
			Description: "Delete build outputs, artifacts and publish directories",
			Action:      b.clean,
		},
		{
			Name:        CalculateVersion,
			Description: "Calculate the version number or read it from the version file",
			Action:      b.calculateVersion,
		},
		{
			Name:        Compile,
			Description: "Build the solution",
			DependsOn:   []string{Clean, CalculateVersion},
			Action:      b.compile,
		},
		{
			Name:        Test,
			Description: "Run the tests without rebuilding",
			DependsOn:   []string{Compile},
			Action:      b.test,
		},
		{
			Name:        DotnetPublish,
			Description: "Publish the portable and per-runtime binaries",
			DependsOn:   []string{Test},
			Action:      b.publish,
		},
		{
			Name:        Zip,
			Description: "Archive every published runtime",
			DependsOn:   []string{DotnetPublish},
			Action:      b.zip,
		},
		{
			Name:        PackOctopusToolsNuget,
			Description: "Pack the Windows binaries as a NuGet package",
			DependsOn:   []string{DotnetPublish},
			Condition:   func() bool { return b.goos == "windows" },
			Action:      b.packOctopusToolsNuget,
		},
		{
			Name:        PackDotNetOctoNuget,
			Description: "Pack the dotnet tool packages",
			DependsOn:   []string{DotnetPublish},
			Action:      b.packDotNetOctoNuget,
		},
		{
			Name:        Default,
			Description: "Produce every distributable",
			DependsOn:   []string{PackOctopusToolsNuget, PackDotNetOctoNuget, Zip},
		},
	}
}

func (b *Build) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(b.params.RootDir, filepath.FromSlash(rel))
}

// tool resolves tool paths containing a separator against the root and
// leaves bare names for PATH lookup.
func (b *Build) tool(name string) string {
	if strings.ContainsAny(name, `/\`) {
		return b.path(name)
	}
	return name
}

func (b *Build) sourceDir() string    { return b.path(b.settings.Layout.Source) }
func (b *Build) artifactsDir() string { return b.path(b.settings.Layout.Artifacts) }
func (b *Build) publishDir() string   { return b.path(b.settings.Layout.Publish) }
func (b *Build) assetsDir() string    { return b.path(b.settings.Layout.Assets) }
func (b *Build) octoPublishDir() string {
	return filepath.Join(b.publishDir(), "octo")
}
