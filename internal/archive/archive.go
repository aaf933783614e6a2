// Package archive packages publish directories into zip and tar.gz archives
// and unpacks tar.gz archives.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/schollz/progressbar/v3"

	"github.com/dosanma1/octobuild/internal/logfields"
	"github.com/dosanma1/octobuild/pkg/xos"
)

// Format is an archive container format.
type Format int

const (
	Zip Format = iota
	TarGzip
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case TarGzip:
		return "tar.gz"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string { return "." + f.String() }

// Packager writes archives. Destinations are written atomically.
type Packager struct {
	// Progress shows a progress bar on stderr.
	Progress bool
	Logger   *slog.Logger
}

// Package writes spec.SourceDir into spec.DestPath using spec.Format.
func (p *Packager) Package(spec Spec) error {
	switch spec.Format {
	case Zip:
		return p.PackageZip(spec.SourceDir, spec.DestPath)
	case TarGzip:
		return p.PackageTarGzip(spec.SourceDir, spec.DestPath)
	default:
		return fmt.Errorf("unsupported archive format %v", spec.Format)
	}
}

// PackageZip writes every regular file under src into a deflate zip at dest.
// Member names are relative to src and use forward slashes.
func (p *Packager) PackageZip(src, dest string) error {
	p.logger().Info("Creating zip file", logfields.File(dest), logfields.Path(src))

	files, err := collect(src)
	if err != nil {
		return err
	}

	return p.writeAtomically(dest, len(files), func(w io.Writer, bar *progressbar.ProgressBar) error {
		zw := zip.NewWriter(w)
		for _, f := range files {
			hdr, err := zip.FileInfoHeader(f.info)
			if err != nil {
				return err
			}
			hdr.Name = f.name
			hdr.Method = zip.Deflate

			dst, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			if err := copyFile(dst, f.path); err != nil {
				return err
			}
			_ = bar.Add(1)
		}
		return zw.Close()
	})
}

// PackageTarGzip streams every regular file under src through a tar writer
// and a gzip writer into dest. Memory use does not grow with archive size.
func (p *Packager) PackageTarGzip(src, dest string) error {
	p.logger().Info("Creating tar.gz file", logfields.File(dest), logfields.Path(src))

	files, err := collect(src)
	if err != nil {
		return err
	}

	return p.writeAtomically(dest, len(files), func(w io.Writer, bar *progressbar.ProgressBar) error {
		gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		gz.Name = strings.TrimSuffix(filepath.Base(dest), ".gz")

		tw := tar.NewWriter(gz)
		for _, f := range files {
			hdr, err := tar.FileInfoHeader(f.info, "")
			if err != nil {
				return err
			}
			hdr.Name = f.name
			hdr.Format = tar.FormatPAX
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if err := copyFile(tw, f.path); err != nil {
				return err
			}
			_ = bar.Add(1)
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return gz.Close()
	})
}

func (p *Packager) writeAtomically(dest string, total int, write func(io.Writer, *progressbar.ProgressBar) error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := xos.NewPendingFile(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Cleanup()

	bar := p.progressBar(filepath.Base(dest), total)
	if err := write(out, bar); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	_ = bar.Finish()

	if err := out.Chmod(0644); err != nil {
		return err
	}
	if err := out.CloseAtomically(); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	p.logger().Info("Created archive", logfields.File(dest), logfields.Count(total))
	return nil
}

func (p *Packager) progressBar(desc string, total int) *progressbar.ProgressBar {
	writer := io.Discard
	if p.Progress {
		writer = os.Stderr
	}
	return progressbar.NewOptions(max(total, 1),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*1000000), // 65ms
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(writer, "\n")
		}),
	)
}

func (p *Packager) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

type entry struct {
	path string
	name string
	info fs.FileInfo
}

// collect lists the regular files under root in lexical order.
func collect(root string) ([]entry, error) {
	var files []entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, entry{path: path, name: filepath.ToSlash(rel), info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return files, nil
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}
