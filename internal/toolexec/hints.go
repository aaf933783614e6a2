package toolexec

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var (
	compileErrorRe = regexp.MustCompile(`([^\s\\/]+\.cs)\(\d+,\d+\): error (CS\d+)`)
	testFailureRe  = regexp.MustCompile(`Failed!\s+-\s+Failed:\s+(\d+)`)
	nugetErrorRe   = regexp.MustCompile(`error (NU\d{4})`)
	sdkErrorRe     = regexp.MustCompile(`error (NETSDK\d{4})`)
)

// Hint turns well-known tool failures into a short actionable message.
// It returns "" when nothing is recognised.
func Hint(tool string, output string, err error) string {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Sprintf("%s was not found; install it or set its path under tools in build.yaml", tool)
	}
	if m := compileErrorRe.FindStringSubmatch(output); m != nil {
		return fmt.Sprintf("compilation failed in %s (%s)", m[1], m[2])
	}
	if m := testFailureRe.FindStringSubmatch(output); m != nil {
		return fmt.Sprintf("%s test(s) failed; results are in artifacts/TestResults", m[1])
	}
	if m := sdkErrorRe.FindStringSubmatch(output); m != nil {
		return fmt.Sprintf(".NET SDK error %s; check the installed SDK supports the target framework", m[1])
	}
	if m := nugetErrorRe.FindStringSubmatch(output); m != nil {
		return fmt.Sprintf("NuGet error %s; check package sources and the nuspec", m[1])
	}
	lower := strings.ToLower(output)
	if strings.Contains(lower, "timestamp") && (strings.Contains(lower, "could not be reached") || strings.Contains(lower, "invalid response")) {
		return "the timestamp authority did not answer"
	}
	return ""
}

// errorLines keeps up to n lines of output that look like errors.
func errorLines(output string, n int) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "error ") || strings.HasPrefix(line, "ERROR") || strings.Contains(line, "Error:") {
			lines = append(lines, line)
			if len(lines) == n {
				break
			}
		}
	}
	return lines
}
