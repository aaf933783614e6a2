// Package dotnet drives the dotnet and nuget command line tools.
package dotnet

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/dosanma1/octobuild/internal/toolexec"
)

// CLI runs dotnet and nuget commands from a working directory.
type CLI struct {
	Runner toolexec.Runner
	Dotnet string
	NuGet  string
	Dir    string
}

// BuildSettings configures dotnet build.
type BuildSettings struct {
	Project       string
	Configuration string
	Version       string
}

func (s BuildSettings) args() []string {
	args := []string{"build", s.Project, "--configuration", s.Configuration}
	if s.Version != "" {
		args = append(args, "/p:Version="+s.Version)
	}
	return args
}

// TestSettings configures dotnet test.
type TestSettings struct {
	Project          string
	Configuration    string
	NoBuild          bool
	ResultsDirectory string
	Loggers          []string
}

func (s TestSettings) args() []string {
	args := []string{"test", s.Project, "--configuration", s.Configuration}
	if s.NoBuild {
		args = append(args, "--no-build")
	}
	if s.ResultsDirectory != "" {
		args = append(args, "--results-directory", s.ResultsDirectory)
	}
	for _, l := range s.Loggers {
		args = append(args, "--logger", l)
	}
	return args
}

// PublishSettings configures dotnet publish.
type PublishSettings struct {
	Project           string
	Configuration     string
	Framework         string
	Runtime           string
	Output            string
	Version           string
	SelfContained     bool
	PublishSingleFile bool
}

func (s PublishSettings) args() []string {
	args := []string{"publish", s.Project, "--configuration", s.Configuration}
	if s.Framework != "" {
		args = append(args, "--framework", s.Framework)
	}
	if s.Runtime != "" {
		args = append(args, "--runtime", s.Runtime)
	}
	if s.SelfContained {
		args = append(args, "--self-contained", "true")
	}
	if s.PublishSingleFile {
		args = append(args, "/p:PublishSingleFile=true")
	}
	if s.Output != "" {
		args = append(args, "--output", s.Output)
	}
	if s.Version != "" {
		args = append(args, "/p:Version="+s.Version)
	}
	return args
}

// PackSettings configures dotnet pack.
type PackSettings struct {
	Project         string
	Configuration   string
	OutputDirectory string
	Version         string
	NoBuild         bool
	IncludeSymbols  bool
}

func (s PackSettings) args() []string {
	args := []string{"pack", s.Project, "--configuration", s.Configuration}
	if s.OutputDirectory != "" {
		args = append(args, "--output", s.OutputDirectory)
	}
	if s.NoBuild {
		args = append(args, "--no-build")
	}
	if s.IncludeSymbols {
		args = append(args, "--include-symbols")
	}
	if s.Version != "" {
		args = append(args, "/p:Version="+s.Version)
	}
	return args
}

// NuGetPackSettings configures nuget pack.
type NuGetPackSettings struct {
	Nuspec          string
	Version         string
	OutputDirectory string
}

func (s NuGetPackSettings) args() []string {
	args := []string{"pack", s.Nuspec}
	if s.Version != "" {
		args = append(args, "-Version", s.Version)
	}
	if s.OutputDirectory != "" {
		args = append(args, "-OutputDirectory", s.OutputDirectory)
	}
	return args
}

// Build runs dotnet build.
func (c *CLI) Build(ctx context.Context, s BuildSettings) error {
	return c.run(ctx, c.Dotnet, s.args())
}

// Test runs dotnet test.
func (c *CLI) Test(ctx context.Context, s TestSettings) error {
	return c.run(ctx, c.Dotnet, s.args())
}

// Publish runs dotnet publish.
func (c *CLI) Publish(ctx context.Context, s PublishSettings) error {
	return c.run(ctx, c.Dotnet, s.args())
}

// Pack runs dotnet pack.
func (c *CLI) Pack(ctx context.Context, s PackSettings) error {
	return c.run(ctx, c.Dotnet, s.args())
}

// NuGetPack runs nuget pack.
func (c *CLI) NuGetPack(ctx context.Context, s NuGetPackSettings) error {
	return c.run(ctx, c.NuGet, s.args())
}

func (c *CLI) run(ctx context.Context, tool string, args []string) error {
	_, err := c.Runner.Run(ctx, toolexec.Command{Name: tool, Args: args, Dir: c.Dir})
	return err
}

type project struct {
	PropertyGroups []struct {
		RuntimeIdentifiers *string `xml:"RuntimeIdentifiers"`
	} `xml:"PropertyGroup"`
}

// RuntimeIdentifiers reads Project/PropertyGroup/RuntimeIdentifiers from a
// project file. The first property group defining it wins.
func RuntimeIdentifiers(csproj string) ([]string, error) {
	data, err := os.ReadFile(csproj)
	if err != nil {
		return nil, err
	}

	var p project
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", csproj, err)
	}
	for _, g := range p.PropertyGroups {
		if g.RuntimeIdentifiers == nil {
			continue
		}
		var rids []string
		for _, rid := range strings.Split(*g.RuntimeIdentifiers, ";") {
			if rid = strings.TrimSpace(rid); rid != "" {
				rids = append(rids, rid)
			}
		}
		return rids, nil
	}
	return nil, &MissingPropertyError{File: csproj, Property: "Project/PropertyGroup/RuntimeIdentifiers"}
}

// MissingPropertyError reports a required project property that is absent.
type MissingPropertyError struct {
	File     string
	Property string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("unable to find %s in %s", e.Property, e.File)
}
