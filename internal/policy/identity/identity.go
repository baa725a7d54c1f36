// Package identity describes processes by their executable, the way the
// overlay exclusion rules see them: an absolute path and a basename.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Process identifies a process by pid and executable.
type Process struct {
	PID     int
	ExePath string // Absolute path to the executable
	ExeName string // Basename of ExePath
}

// New builds a Process from an executable path, deriving the basename.
func New(pid int, exePath string) Process {
	return Process{
		PID:     pid,
		ExePath: exePath,
		ExeName: Basename(exePath),
	}
}

// Self returns the identity of the current process.
func Self() (Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return Process{}, fmt.Errorf("%w: %v", ErrNoExecutable, err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return New(os.Getpid(), exe), nil
}

// Folded returns a copy with path and name lowercased.
func (p Process) Folded() Process {
	return Process{
		PID:     p.PID,
		ExePath: strings.ToLower(p.ExePath),
		ExeName: strings.ToLower(p.ExeName),
	}
}

// IsZero reports whether nothing is known about the executable.
func (p Process) IsZero() bool {
	return p.ExePath == "" && p.ExeName == ""
}

func (p Process) String() string {
	if p.ExePath != "" {
		return fmt.Sprintf("%s (pid %d)", p.ExePath, p.PID)
	}
	return fmt.Sprintf("%s (pid %d)", p.ExeName, p.PID)
}

// Basename extracts the executable name from a path. Both slash styles are
// separators regardless of the host OS so Windows paths parse everywhere.
func Basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// IsPath reports whether s names a path rather than a bare executable name.
func IsPath(s string) bool {
	return strings.ContainsAny(s, `\/`)
}
