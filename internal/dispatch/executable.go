package dispatch

import (
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultExecutable is the bare command name used when nothing better is found
const DefaultExecutable = "claude"

// Locator finds the claude executable.
// Order: the configured path, common install locations, a PATH lookup, then the
// bare command name so the child's PATH gets the final say.
type Locator struct {
	// Configured is an explicit path from config; used only if it is executable
	Configured string

	// Candidates are checked in order after Configured
	Candidates []string

	lookPath     func(file string) (string, error)
	isExecutable func(path string) bool
}

// NewLocator creates a locator with the standard install locations
func NewLocator(configured string) *Locator {
	home, _ := os.UserHomeDir()
	return &Locator{
		Configured:   configured,
		Candidates:   DefaultCandidates(home),
		lookPath:     exec.LookPath,
		isExecutable: isExecutableFile,
	}
}

// DefaultCandidates lists where installers usually put claude
func DefaultCandidates(home string) []string {
	return []string{
		"/usr/local/bin/claude",
		"/opt/homebrew/bin/claude",
		filepath.Join(home, ".npm-global", "bin", "claude"),
		filepath.Join(home, ".local", "bin", "claude"),
		filepath.Join(home, ".nvm", "versions", "node", "current", "bin", "claude"),
	}
}

// Find returns the executable to run. It never fails; a bare name is returned last.
func (l *Locator) Find() string {
	if l.Configured != "" && l.isExecutable(l.Configured) {
		return l.Configured
	}
	for _, c := range l.Candidates {
		if l.isExecutable(c) {
			return c
		}
	}
	if p, err := l.lookPath(DefaultExecutable); err == nil && p != "" {
		return p
	}
	return DefaultExecutable
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
