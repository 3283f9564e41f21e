// Package constants defines shared constant values used throughout xlaude.
package constants

import "time"

// Timing constants for gateway calls and session management.
//
// Values that users commonly tune (refresh intervals, preview lines) can be
// overridden through config.toml; see config.Settings.
const (
	// GitTimeout bounds every git subprocess invocation.
	GitTimeout = 30 * time.Second

	// TmuxTimeout bounds every tmux subprocess invocation except attach,
	// which is a deliberate, user-controlled suspension.
	TmuxTimeout = 10 * time.Second

	// PollInterval is the default polling interval for wait loops.
	PollInterval = 100 * time.Millisecond

	// StopTimeout is how long Stop waits for a killed session to disappear
	// from the live list.
	StopTimeout = 5 * time.Second

	// LiveCacheTTL bounds how long a tmux session listing is reused before
	// status queries go back to tmux.
	LiveCacheTTL = 2 * time.Second

	// DashboardRefresh is the period of the dashboard's session refresh timer.
	DashboardRefresh = 2 * time.Second

	// VcsRefreshInterval throttles git existence checks from the dashboard.
	VcsRefreshInterval = 30 * time.Second

	// StatusLineTTL is how long a transient dashboard status line stays up.
	StatusLineTTL = 5 * time.Second

	// StartupCheckDelay is how long after creation a session is inspected
	// for an immediately-exiting command.
	StartupCheckDelay = 250 * time.Millisecond
)

// Display limits.
const (
	// RecentSessionLimit is how many assistant sessions are shown per workspace.
	RecentSessionLimit = 3

	// PreviewMaxWidth is the display width at which session previews are cut.
	PreviewMaxWidth = 60

	// DefaultPreviewLines is how many pane lines the dashboard preview captures.
	DefaultPreviewLines = 15
)

// Directory and file names.
const (
	// DirApp is the per-user configuration directory name.
	DirApp = "xlaude"

	// FileState is the persisted workspace registry.
	FileState = "state.json"

	// FileConfig is the optional user configuration file.
	FileConfig = "config.toml"

	// FileLog is the dashboard log file, written inside the state directory.
	FileLog = "xlaude.log"
)

// Git branch names treated as base branches, never as workspaces.
var BaseBranches = []string{"main", "master", "develop"}

// Tmux session names.
const (
	// SessionPrefix is the default prefix for xlaude tmux sessions.
	SessionPrefix = "xlaude"

	// MinTmuxVersion is the oldest tmux that supports new-session -e.
	MinTmuxVersion = "3.2"
)

// Environment variables read by xlaude.
const (
	EnvConfigDir  = "XLAUDE_CONFIG_DIR"
	EnvYes        = "XLAUDE_YES"
	EnvLogLevel   = "XLAUDE_LOG_LEVEL"
	EnvTmuxSocket = "XLAUDE_TMUX_SOCKET"
	EnvAgentOrder = "XLAUDE_AGENT_ORDER"

	EnvOpenCodeCmd = "XLAUDE_OPENCODE_CMD"
	EnvQwenCmd     = "XLAUDE_QWEN_CMD"
	EnvClaudeCmd   = "XLAUDE_CLAUDE_CMD"
)

// Environment variables set inside every workspace session.
const (
	EnvWorkspace = "XLAUDE_WORKSPACE"
	EnvRepo      = "XLAUDE_REPO"
	EnvBranch    = "XLAUDE_BRANCH"
	EnvSession   = "XLAUDE_SESSION"
)

// IsBaseBranch reports whether branch is one of BaseBranches.
func IsBaseBranch(branch string) bool {
	for _, b := range BaseBranches {
		if b == branch {
			return true
		}
	}
	return false
}
