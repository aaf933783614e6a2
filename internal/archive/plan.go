package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PortableDir is the framework-dependent publish output.
const PortableDir = "portable"

// Spec describes one archive to produce.
type Spec struct {
	SourceDir string
	DestPath  string
	Format    Format
}

// FormatsFor returns the archive formats produced for a publish directory.
// The portable build ships in both formats, Windows builds as zip and
// everything else as tar.gz.
func FormatsFor(dirName string) []Format {
	switch {
	case dirName == PortableDir:
		return []Format{Zip, TarGzip}
	case strings.Contains(dirName, "win"):
		return []Format{Zip}
	default:
		return []Format{TarGzip}
	}
}

// Plan lists the archives for every directory directly under publishDir.
// Destinations are named <artifactsDir>/<prefix>.<dir><ext>.
func Plan(publishDir, artifactsDir, prefix string) ([]Spec, error) {
	entries, err := os.ReadDir(publishDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", publishDir, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	var specs []Spec
	for _, dir := range dirs {
		base := filepath.Join(artifactsDir, prefix+"."+dir)
		for _, f := range FormatsFor(dir) {
			specs = append(specs, Spec{
				SourceDir: filepath.Join(publishDir, dir),
				DestPath:  base + f.Ext(),
				Format:    f,
			})
		}
	}
	return specs, nil
}
