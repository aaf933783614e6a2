// Package logfields holds the canonical slog attribute keys used across the build.
package logfields

import (
	"log/slog"
	"time"
)

const (
	KeyTarget     = "target"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyURL        = "url"
	KeyVersion    = "version"
	KeyTool       = "tool"
	KeyBackend    = "backend"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func Target(name string) slog.Attr    { return slog.String(KeyTarget, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Tool(name string) slog.Attr      { return slog.String(KeyTool, name) }
func Backend(name string) slog.Attr   { return slog.String(KeyBackend, name) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
