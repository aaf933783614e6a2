// Package signing signs build outputs, falling back across RFC 3161
// timestamp authorities until one of them accepts the batch.
package signing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/dosanma1/octobuild/internal/logfields"
)

// ErrNoAuthorities is returned when a signer has nothing to try.
var ErrNoAuthorities = errors.New("no timestamp authorities configured")

// ExhaustedError reports that every authority failed. Only the error of
// the last attempt is kept.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("signing failed with all %d timestamp authorities: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Signer signs files with one backend.
type Signer struct {
	Backend     Backend
	Authorities []string
	Patterns    []string
	// Local disables signing entirely.
	Local  bool
	Logger *slog.Logger
}

// Sign signs files as one batch, trying each authority in order and
// stopping at the first success.
func (s *Signer) Sign(ctx context.Context, files []string) error {
	if s.Local || len(files) == 0 {
		return nil
	}
	if len(s.Authorities) == 0 {
		return ErrNoAuthorities
	}
	log := s.logger().With(logfields.Backend(s.Backend.Name()))

	var last error
	for i, url := range s.Authorities {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("Signing and timestamping", logfields.URL(url), logfields.Count(len(files)))
		err := s.Backend.Sign(ctx, files, url)
		if err == nil {
			return nil
		}
		log.Warn("Timestamp authority failed", logfields.URL(url), logfields.Error(err))
		last = err
		if ctx.Err() != nil {
			return &ExhaustedError{Attempts: i + 1, Last: last}
		}
	}
	return &ExhaustedError{Attempts: len(s.Authorities), Last: last}
}

// SignDirectory signs every matching file under dir.
func (s *Signer) SignDirectory(ctx context.Context, dir string) error {
	if s.Local {
		return nil
	}
	log := s.logger()
	log.Info("Signing binaries", logfields.Path(dir))

	files, err := Discover(dir, s.Patterns)
	if err != nil {
		return err
	}
	if err := s.Sign(ctx, files); err != nil {
		return fmt.Errorf("signing %s: %w", dir, err)
	}
	log.Info("Finished signing", logfields.Path(dir), logfields.Count(len(files)))
	return nil
}

func (s *Signer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Discover walks root and returns the files whose base name matches any of
// the patterns. Results are grouped by pattern in pattern order and each
// path appears once.
func Discover(root string, patterns []string) ([]string, error) {
	var all []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			all = append(all, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files in %s: %w", root, err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		for _, path := range all {
			ok, err := filepath.Match(pattern, filepath.Base(path))
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			if ok && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}
	return files, nil
}
