package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/dosanma1/octobuild/internal/logfields"
)

// UnpackOptions controls Unpack.
type UnpackOptions struct {
	// CaseInsensitive removes any existing entry whose name differs from an
	// incoming file only by case, so the archive's casing wins.
	CaseInsensitive bool
	// Logger receives a debug record for every entry that is not extracted;
	// slog.Default when nil.
	Logger *slog.Logger
}

// DefaultUnpackOptions matches the host filesystem.
func DefaultUnpackOptions() UnpackOptions {
	return UnpackOptions{CaseInsensitive: runtime.GOOS == "windows"}
}

// Unpack extracts a tar.gz archive into dest. Only directories and regular
// files are extracted; links and special files are skipped.
func Unpack(path, dest string, opts UnpackOptions) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		target, err := entryPath(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if opts.CaseInsensitive {
				if err := removeCaseVariants(target); err != nil {
					return err
				}
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		default:
			log.Debug("Skipping archive entry",
				logfields.File(hdr.Name),
				slog.String("type", string(hdr.Typeflag)))
		}
	}
}

// entryPath resolves name under root, rejecting names that escape it.
func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

// removeCaseVariants deletes files in target's directory whose name equals
// target's base name ignoring case.
func removeCaseVariants(target string) error {
	dir, base := filepath.Split(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(e.Name(), base) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
