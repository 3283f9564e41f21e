// Package deps checks that the external tools xlaude drives are installed
// and new enough.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/leowmjw/xlaude/internal/constants"
)

// MinGitVersion is the oldest git whose worktree porcelain output includes
// the prunable attribute.
const MinGitVersion = "2.31"

// Status represents the state of a tool installation.
type Status int

const (
	StatusOK         Status = iota // found, version compatible
	StatusNotFound                 // not in PATH
	StatusTooOld                   // found but version too old
	StatusExecFailed               // found but the version command failed
	StatusUnknown                  // version ran but output couldn't be parsed
)

// Tool describes how to find and version an external binary.
type Tool struct {
	Name       string
	Binary     string
	VersionArg string
	Pattern    *regexp.Regexp // first submatch is the version
	MinVersion string
	InstallURL string
}

// Tmux is the terminal multiplexer sessions run in. 3.2 added
// new-session -e.
var Tmux = Tool{
	Name:       "tmux",
	Binary:     "tmux",
	VersionArg: "-V",
	Pattern:    regexp.MustCompile(`tmux (?:next-)?(\d+\.\d+[a-z]?)`),
	MinVersion: constants.MinTmuxVersion,
	InstallURL: "https://github.com/tmux/tmux/wiki/Installing",
}

// Git provides the worktrees workspaces are built on.
var Git = Tool{
	Name:       "git",
	Binary:     "git",
	VersionArg: "--version",
	Pattern:    regexp.MustCompile(`git version (\d+\.\d+(?:\.\d+)?)`),
	MinVersion: MinGitVersion,
	InstallURL: "https://git-scm.com/downloads",
}

// Result is the outcome of Check.
type Result struct {
	Status  Status
	Version string
	// Detail carries stderr or the raw output for failure cases.
	Detail string
}

// Check reports whether t is installed and compatible.
func Check(ctx context.Context, t Tool) Result {
	path, err := exec.LookPath(t.Binary)
	if err != nil {
		return Result{Status: StatusNotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, t.VersionArg).CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return Result{Status: StatusExecFailed, Detail: fmt.Sprintf("at %s: %s", path, detail)}
	}

	version := t.ParseVersion(string(output))
	if version == "" {
		return Result{Status: StatusUnknown, Detail: strings.TrimSpace(string(output))}
	}
	if CompareVersions(version, t.MinVersion) < 0 {
		return Result{Status: StatusTooOld, Version: version}
	}
	return Result{Status: StatusOK, Version: version}
}

// ParseVersion extracts the version from the tool's version output.
func (t Tool) ParseVersion(output string) string {
	m := t.Pattern.FindStringSubmatch(output)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}
