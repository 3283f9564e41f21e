// Package config provides configuration loading and environment variable management.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/leowmjw/xlaude/internal/constants"
)

// AgentEnvConfig specifies the configuration for generating the environment
// of an assistant session.
type AgentEnvConfig struct {
	// WorkspaceKey is the registry key, "<repo>/<name>".
	WorkspaceKey string

	// Repo is the repository name.
	Repo string

	// Branch is the branch checked out in the workspace.
	Branch string

	// SessionName is the tmux session the assistant runs in. Empty when the
	// assistant runs in the foreground.
	SessionName string
}

// AgentEnv returns all environment variables for an assistant session.
// Empty values are omitted so they never shadow the user's environment.
func AgentEnv(cfg AgentEnvConfig) map[string]string {
	env := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}
	set(constants.EnvWorkspace, cfg.WorkspaceKey)
	set(constants.EnvRepo, cfg.Repo)
	set(constants.EnvBranch, cfg.Branch)
	set(constants.EnvSession, cfg.SessionName)
	return env
}

// ShellQuote returns a shell-safe quoted string.
// Values containing special characters are wrapped in single quotes.
// Single quotes within the value are escaped using the '\'' idiom.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	needsQuoting := strings.ContainsAny(s, " \t\n\"'`$\\!*?[]{}()<>|&;#~")
	if !needsQuoting {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// ShellJoin quotes each word and joins them with spaces.
func ShellJoin(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = ShellQuote(w)
	}
	return strings.Join(quoted, " ")
}

// ExportPrefix builds an export statement prefix for shell commands.
// Returns a string like "export XLAUDE_REPO=repo XLAUDE_WORKSPACE=repo/foo && ".
// The keys are sorted for deterministic output.
func ExportPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}

	var parts []string
	for _, k := range sortedKeys(env) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, ShellQuote(env[k])))
	}

	return "export " + strings.Join(parts, " ") + " && "
}

// MergeEnv merges multiple environment maps, with later maps taking precedence.
func MergeEnv(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// EnvForExecCommand returns os.Environ() with the given env vars appended.
// This is useful for setting cmd.Env on exec.Command.
func EnvForExecCommand(env map[string]string) []string {
	result := os.Environ()
	for _, k := range sortedKeys(env) {
		result = append(result, k+"="+env[k])
	}
	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
