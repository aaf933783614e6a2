//go:build windows

// Package xos provides atomic file operations for build outputs.
// On Windows the temp file lives next to the destination and the
// destination is removed before the rename.
package xos

import (
	"os"
	"path/filepath"
)

// WriteFile writes data to the named file via a temp file and rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	p, err := NewPendingFile(filename)
	if err != nil {
		return err
	}
	defer p.Cleanup()

	if _, err := p.Write(data); err != nil {
		return err
	}
	if err := p.Chmod(perm); err != nil {
		return err
	}
	return p.CloseAtomically()
}

// PendingFile is a destination that only becomes visible once
// CloseAtomically succeeds. Call Cleanup to discard it.
type PendingFile struct {
	tempFile *os.File
	tempName string
	path     string
	perm     os.FileMode
	done     bool
}

// NewPendingFile creates a new pending file for atomic writing.
func NewPendingFile(filename string) (*PendingFile, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(filename), ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &PendingFile{
		tempFile: tempFile,
		tempName: tempFile.Name(),
		path:     filename,
		perm:     0644,
	}, nil
}

// Write writes data to the pending file.
func (p *PendingFile) Write(data []byte) (int, error) {
	return p.tempFile.Write(data)
}

// Chmod records the mode applied on CloseAtomically.
func (p *PendingFile) Chmod(perm os.FileMode) error {
	p.perm = perm
	return nil
}

// CloseAtomically renames the temp file over the destination.
func (p *PendingFile) CloseAtomically() error {
	if err := p.tempFile.Sync(); err != nil {
		return err
	}
	if err := p.tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(p.tempName, p.perm); err != nil {
		return err
	}
	if _, err := os.Stat(p.path); err == nil {
		if err := os.Remove(p.path); err != nil {
			return err
		}
	}
	if err := os.Rename(p.tempName, p.path); err != nil {
		return err
	}
	p.done = true
	return nil
}

// Cleanup discards the pending file. It is a no-op after CloseAtomically.
func (p *PendingFile) Cleanup() {
	if p.done {
		return
	}
	p.tempFile.Close()
	os.Remove(p.tempName)
}
