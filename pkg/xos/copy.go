package xos

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst atomically, keeping the source file mode.
// Parent directories of dst are created as needed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := NewPendingFile(dst)
	if err != nil {
		return err
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	return out.CloseAtomically()
}

// CopyToDir copies src into dir under its base name.
func CopyToDir(src, dir string) error {
	return CopyFile(src, filepath.Join(dir, filepath.Base(src)))
}

// CopyDir recursively copies the regular files under src into dst.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(path, target)
	})
}
