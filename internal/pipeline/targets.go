package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/dosanma1/octobuild/internal/archive"
	"github.com/dosanma1/octobuild/internal/dotnet"
	"github.com/dosanma1/octobuild/internal/logfields"
	"github.com/dosanma1/octobuild/pkg/xos"
)

// cleanPatterns are removed below the source directory by Clean.
var cleanPatterns = []string{"**/bin", "**/obj", "**/TestResults"}

// octoAssets are copied next to the portable binaries.
var octoAssets = []string{"octo", "octo.cmd"}

// nugetAssets are copied into the OctopusTools NuGet package directory.
var nugetAssets = []string{"icon.png", "LICENSE.txt", "VERIFICATION.txt", "init.ps1"}

func (b *Build) clean(ctx context.Context) error {
	for _, pattern := range cleanPatterns {
		matches, err := doublestar.Glob(filepath.Join(b.sourceDir(), filepath.FromSlash(pattern)))
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			b.logger.Debug("Deleting directory", logfields.Path(m))
			if err := os.RemoveAll(m); err != nil {
				return fmt.Errorf("delete %s: %w", m, err)
			}
		}
	}
	for _, dir := range []string{b.artifactsDir(), b.publishDir()} {
		if err := ensureCleanDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func ensureCleanDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean %s: %w", dir, err)
	}
	return os.MkdirAll(dir, 0755)
}

func (b *Build) calculateVersion(ctx context.Context) error {
	_, err := b.version.Get(ctx)
	return err
}

func (b *Build) fullSemVer(ctx context.Context) (string, error) {
	info, err := b.version.Get(ctx)
	if err != nil {
		return "", err
	}
	return info.FullSemVer, nil
}

func (b *Build) compile(ctx context.Context) error {
	v, err := b.fullSemVer(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("Building OctopusCLI", logfields.Version(v))

	return b.dotnet.Build(ctx, dotnet.BuildSettings{
		Project:       b.path(b.settings.Projects.Solution),
		Configuration: b.params.Configuration,
		Version:       v,
	})
}

func (b *Build) test(ctx context.Context) error {
	return b.dotnet.Test(ctx, dotnet.TestSettings{
		Project:          b.path(b.settings.Projects.Solution),
		Configuration:    b.params.Configuration,
		NoBuild:          true,
		ResultsDirectory: filepath.Join(b.artifactsDir(), "TestResults"),
		Loggers:          []string{"console;verbosity=detailed", "trx"},
	})
}

func (b *Build) publish(ctx context.Context) error {
	v, err := b.fullSemVer(ctx)
	if err != nil {
		return err
	}
	octo := b.path(b.settings.Projects.Octo)

	portable := filepath.Join(b.octoPublishDir(), archive.PortableDir)
	err = b.dotnet.Publish(ctx, dotnet.PublishSettings{
		Project:       octo,
		Configuration: b.params.Configuration,
		Framework:     b.settings.Projects.PortableFramework,
		Output:        portable,
		Version:       v,
	})
	if err != nil {
		return err
	}
	if err := b.signer.SignDirectory(ctx, portable); err != nil {
		return err
	}
	for _, asset := range octoAssets {
		if err := xos.CopyToDir(filepath.Join(b.assetsDir(), asset), portable); err != nil {
			return fmt.Errorf("copy asset %s: %w", asset, err)
		}
	}

	rids, err := dotnet.RuntimeIdentifiers(octo)
	if err != nil {
		return err
	}
	for _, rid := range rids {
		out := filepath.Join(b.octoPublishDir(), rid)
		err := b.dotnet.Publish(ctx, dotnet.PublishSettings{
			Project:           octo,
			Configuration:     b.params.Configuration,
			Framework:         b.settings.Projects.RuntimeFramework,
			Runtime:           rid,
			Output:            out,
			Version:           v,
			SelfContained:     true,
			PublishSingleFile: true,
		})
		if err != nil {
			return err
		}

		// linux binaries are verified at download and osx binaries are signed on a mac.
		if signsRuntime(rid) {
			if err := b.signer.SignDirectory(ctx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func signsRuntime(rid string) bool {
	return !strings.HasPrefix(rid, "linux-") && !strings.HasPrefix(rid, "osx-")
}

func (b *Build) zip(ctx context.Context) error {
	v, err := b.fullSemVer(ctx)
	if err != nil {
		return err
	}
	prefix := b.settings.Projects.ArchivePrefix + "." + v
	specs, err := archive.Plan(b.octoPublishDir(), b.artifactsDir(), prefix)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.packager.Package(spec); err != nil {
			return err
		}
	}
	return nil
}

func (b *Build) packOctopusToolsNuget(ctx context.Context) error {
	v, err := b.fullSemVer(ctx)
	if err != nil {
		return err
	}
	packDir := filepath.Join(b.publishDir(), "nuget")
	nuspec := b.settings.Projects.Nuspec

	if err := xos.CopyDir(filepath.Join(b.octoPublishDir(), "win-x64"), packDir); err != nil {
		return fmt.Errorf("copy win-x64: %w", err)
	}
	for _, asset := range append(append([]string(nil), nugetAssets...), nuspec) {
		if err := xos.CopyToDir(filepath.Join(b.assetsDir(), asset), packDir); err != nil {
			return fmt.Errorf("copy asset %s: %w", asset, err)
		}
	}

	return b.dotnet.NuGetPack(ctx, dotnet.NuGetPackSettings{
		Nuspec:          filepath.Join(packDir, nuspec),
		Version:         v,
		OutputDirectory: b.artifactsDir(),
	})
}

func (b *Build) packDotNetOctoNuget(ctx context.Context) error {
	v, err := b.fullSemVer(ctx)
	if err != nil {
		return err
	}
	for _, project := range []string{b.settings.Projects.OctopusCli, b.settings.Projects.DotNetOctoCli} {
		dir := b.path(project)
		if err := b.signer.SignDirectory(ctx, filepath.Join(dir, "bin", b.params.Configuration)); err != nil {
			return err
		}
		err := b.dotnet.Pack(ctx, dotnet.PackSettings{
			Project:         dir,
			Configuration:   b.params.Configuration,
			OutputDirectory: b.artifactsDir(),
			Version:         v,
			NoBuild:         true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
