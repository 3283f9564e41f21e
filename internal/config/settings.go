package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// DefaultWorktreeDir places new workspaces next to the main worktree, the
// layout xlaude has always used.
const DefaultWorktreeDir = "../{repo}-{name}"

var validPrefixRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Duration is a time.Duration that decodes from TOML strings like "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("duration must be positive, got %s", v)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Settings is the user configuration, read from config.toml.
//
// Example:
//
//	agent_order = ["claude", "opencode"]
//	session_prefix = "xl"
//	refresh_interval = "1s"
//	vcs_refresh_interval = "1m"
//	preview_lines = 20
//	worktree_dir = "../worktrees/{repo}/{name}"
type Settings struct {
	AgentOrder         []string `toml:"agent_order"`
	SessionPrefix      string   `toml:"session_prefix"`
	RefreshInterval    Duration `toml:"refresh_interval"`
	VcsRefreshInterval Duration `toml:"vcs_refresh_interval"`
	PreviewLines       int      `toml:"preview_lines"`
	WorktreeDir        string   `toml:"worktree_dir"`
}

// DefaultSettings returns the settings used when no config file exists.
func DefaultSettings() *Settings {
	return &Settings{
		SessionPrefix:      constants.SessionPrefix,
		RefreshInterval:    Duration{constants.DashboardRefresh},
		VcsRefreshInterval: Duration{constants.VcsRefreshInterval},
		PreviewLines:       constants.DefaultPreviewLines,
		WorktreeDir:        DefaultWorktreeDir,
	}
}

// LoadSettings reads the TOML config at path on top of the defaults.
// A missing file yields the defaults. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return nil, xerr.Wrap(xerr.KindInvalid, "config", err, "parsing %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, xerr.New(xerr.KindInvalid, "config", "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := s.validate(); err != nil {
		return nil, xerr.Wrap(xerr.KindInvalid, "config", err, "invalid %s", path)
	}
	return s, nil
}

// Load reads the settings from the default location.
func Load() (*Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return nil, err
	}
	return LoadSettings(path)
}

func (s *Settings) validate() error {
	if !validPrefixRe.MatchString(s.SessionPrefix) {
		return fmt.Errorf("session_prefix %q must match %s", s.SessionPrefix, validPrefixRe)
	}
	if s.PreviewLines <= 0 {
		return fmt.Errorf("preview_lines must be positive, got %d", s.PreviewLines)
	}
	if !strings.Contains(s.WorktreeDir, "{name}") {
		return fmt.Errorf("worktree_dir %q must contain {name}", s.WorktreeDir)
	}
	return nil
}

// WorktreePath expands the worktree_dir template for a new workspace.
// Relative templates are resolved against the repository's main worktree.
func (s *Settings) WorktreePath(repoRoot, repo, name string) string {
	dir := s.WorktreeDir
	if dir == "" {
		dir = DefaultWorktreeDir
	}
	dir = strings.NewReplacer("{repo}", repo, "{name}", name).Replace(dir)
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	return filepath.Clean(dir)
}
