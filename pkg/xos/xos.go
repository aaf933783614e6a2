//go:build !windows

// Package xos provides atomic file operations for build outputs.
// Writes land in a temp file first and are renamed into place, so a
// crashed or cancelled build never leaves a truncated artifact behind.
package xos

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to the named file atomically using rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}

// PendingFile is a destination that only becomes visible once
// CloseAtomically succeeds. Call Cleanup to discard it.
type PendingFile struct {
	tempFile *renameio.PendingFile
}

// NewPendingFile creates a new pending file for atomic writing.
func NewPendingFile(filename string) (*PendingFile, error) {
	t, err := renameio.TempFile("", filename)
	if err != nil {
		return nil, err
	}
	return &PendingFile{tempFile: t}, nil
}

// Write writes data to the pending file.
func (p *PendingFile) Write(data []byte) (int, error) {
	return p.tempFile.Write(data)
}

// Chmod changes the file mode of the pending file.
func (p *PendingFile) Chmod(perm os.FileMode) error {
	return p.tempFile.Chmod(perm)
}

// CloseAtomically renames the temp file over the destination.
func (p *PendingFile) CloseAtomically() error {
	return p.tempFile.CloseAtomicallyReplace()
}

// Cleanup discards the pending file. It is a no-op after CloseAtomically.
func (p *PendingFile) Cleanup() {
	_ = p.tempFile.Cleanup()
}
