// Package version calculates the version number stamped on every build output.
//
// The version is computed once per checkout by the octoversion tool and cached
// in octoversion.txt; later runs read the cached value verbatim.
package version

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dosanma1/octobuild/internal/logfields"
	"github.com/dosanma1/octobuild/internal/toolexec"
	"github.com/dosanma1/octobuild/pkg/xos"
)

// LocalBranch is passed to the version tool when no branch is configured.
const LocalBranch = "local"

// NonPreReleaseTagsRegex makes only tags without a hyphen produce release versions.
const NonPreReleaseTagsRegex = "refs/tags/[^-]*$"

//go:embed schemas/octoversion.schema.json
var schemaFS embed.FS

// Info is the resolved version.
type Info struct {
	FullSemVer    string
	PreReleaseTag string
	// FromCache is set when FullSemVer was read from the cache file.
	FromCache bool
}

// Resolver computes the build version.
type Resolver struct {
	CachePath string
	Tool      string
	Branch    string
	RunNumber string
	IsLocal   bool
	Runner    toolexec.Runner
	// Notices receives the CI notice lines; nil discards them.
	Notices io.Writer
	Logger  *slog.Logger
}

// Resolve returns the cached version when the cache file exists and
// otherwise runs the version tool and writes the cache.
func (r *Resolver) Resolve(ctx context.Context) (Info, error) {
	log := r.logger()

	log.Info("Looking for existing version file", logfields.Path(r.CachePath))
	cached, err := os.ReadFile(r.CachePath)
	switch {
	case err == nil:
		v := string(cached)
		log.Info("Using cached version", logfields.Path(r.CachePath), logfields.Version(v))
		return Info{FullSemVer: v, FromCache: true}, nil
	case !errors.Is(err, os.ErrNotExist):
		return Info{}, fmt.Errorf("failed to read %s: %w", r.CachePath, err)
	}

	branch := r.Branch
	if branch == "" {
		branch = LocalBranch
	}
	res, err := r.Runner.Run(ctx, toolexec.Command{
		Name: r.Tool,
		Args: []string{
			"--CurrentBranch", branch,
			"--NonPreReleaseTagsRegex", NonPreReleaseTagsRegex,
			"--OutputFormats", "Json",
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("version calculation failed: %w", err)
	}

	info, err := Parse([]byte(res.Stdout))
	if err != nil {
		return Info{}, err
	}

	if !r.IsLocal && info.PreReleaseTag != "" {
		if r.RunNumber == "" {
			log.Warn("Pre-release build without a run number, version left unsuffixed", logfields.Version(info.FullSemVer))
		} else {
			// Hyphen-separated: "x-SomeLib-1.1.0" with run 23 must not become "1.1.023".
			info.FullSemVer += "-" + r.RunNumber
		}
	}

	if err := xos.WriteFile(r.CachePath, []byte(info.FullSemVer), 0644); err != nil {
		return Info{}, fmt.Errorf("failed to write %s: %w", r.CachePath, err)
	}
	log.Info("Calculated version", logfields.Version(info.FullSemVer), logfields.Path(r.CachePath))

	if r.Notices != nil {
		fmt.Fprintf(r.Notices, "##[notice]Release version number: %s\n", info.FullSemVer)
		fmt.Fprintf(r.Notices, "::set-output name=version::%s\n", info.FullSemVer)
	}
	return info, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

type toolOutput struct {
	FullSemVer    string  `json:"FullSemVer"`
	PreReleaseTag *string `json:"PreReleaseTag"`
}

// Parse extracts the version from the version tool's JSON output. Log lines
// printed around the JSON object are ignored.
func Parse(stdout []byte) (Info, error) {
	start := bytes.IndexByte(stdout, '{')
	end := bytes.LastIndexByte(stdout, '}')
	if start < 0 || end < start {
		return Info{}, fmt.Errorf("version tool output contains no JSON object")
	}
	doc := stdout[start : end+1]

	schema, err := schemaFS.ReadFile("schemas/octoversion.schema.json")
	if err != nil {
		return Info{}, fmt.Errorf("failed to load version schema: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse version tool output: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Info{}, fmt.Errorf("unexpected version tool output: %s", strings.Join(msgs, "; "))
	}

	var out toolOutput
	if err := json.Unmarshal(doc, &out); err != nil {
		return Info{}, fmt.Errorf("failed to parse version tool output: %w", err)
	}
	if _, err := semver.Parse(out.FullSemVer); err != nil {
		return Info{}, fmt.Errorf("version tool returned invalid version %q: %w", out.FullSemVer, err)
	}

	info := Info{FullSemVer: out.FullSemVer}
	if out.PreReleaseTag != nil {
		info.PreReleaseTag = *out.PreReleaseTag
	}
	return info, nil
}

// Memo resolves the version at most once and hands the same result to
// every caller.
type Memo struct {
	resolver *Resolver

	once sync.Once
	info Info
	err  error
}

// NewMemo wraps r.
func NewMemo(r *Resolver) *Memo {
	return &Memo{resolver: r}
}

// Get returns the version, resolving it on first use.
func (m *Memo) Get(ctx context.Context) (Info, error) {
	m.once.Do(func() {
		m.info, m.err = m.resolver.Resolve(ctx)
	})
	return m.info, m.err
}
