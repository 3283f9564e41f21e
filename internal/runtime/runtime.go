// Package runtime selects and launches the AI coding assistant that runs in
// a workspace.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/leowmjw/xlaude/internal/config"
	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// Tool describes an assistant CLI.
type Tool struct {
	// ID is the short name used in agent_order, e.g. "claude".
	ID string
	// Name is the display name.
	Name string
	// Binary is looked up in PATH when no override is set.
	Binary string
	// DefaultArgs are passed only when Binary is used.
	DefaultArgs []string
	// OverrideEnv names the variable whose non-empty value replaces the
	// whole command line.
	OverrideEnv string
}

// Tools returns the known assistants in default priority order.
func Tools() []Tool {
	return []Tool{
		{ID: "opencode", Name: "OpenCode", Binary: "opencode", OverrideEnv: constants.EnvOpenCodeCmd},
		{ID: "qwen", Name: "Qwen Code", Binary: "qwen", OverrideEnv: constants.EnvQwenCmd},
		{ID: "claude", Name: "Claude", Binary: "claude", DefaultArgs: []string{"--dangerously-skip-permissions"}, OverrideEnv: constants.EnvClaudeCmd},
	}
}

// ToolByID looks up a known tool.
func ToolByID(id string) (Tool, bool) {
	for _, t := range Tools() {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// Selection is a resolved assistant command.
type Selection struct {
	Tool Tool
	// Override is the verbatim command from the tool's override variable.
	Override string
}

// Command renders the selection as a single shell command line.
func (s Selection) Command() string {
	if s.Override != "" {
		return s.Override
	}
	return config.ShellJoin(append([]string{s.Tool.Binary}, s.Tool.DefaultArgs...)...)
}

// Resolver picks the first available assistant. The environment is read on
// every call so a changed override takes effect on the next launch.
type Resolver struct {
	// Order is the configured priority (tool IDs). Empty means Tools() order.
	Order []string

	getenv   func(string) string
	lookPath func(string) (string, error)
}

// NewResolver returns a Resolver using the process environment and PATH.
func NewResolver(order []string) *Resolver {
	return &Resolver{Order: order, getenv: os.Getenv, lookPath: exec.LookPath}
}

// order returns the tools to try. XLAUDE_AGENT_ORDER beats the configured
// order, which beats the built-in one.
func (r *Resolver) order() ([]Tool, error) {
	ids := r.Order
	if env := strings.TrimSpace(r.getenv(constants.EnvAgentOrder)); env != "" {
		ids = strings.Split(env, ",")
	}
	if len(ids) == 0 {
		return Tools(), nil
	}
	tools := make([]Tool, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		t, ok := ToolByID(id)
		if !ok {
			return nil, xerr.Invalid("runtime", "unknown assistant %q in agent order", id).
				WithHint("valid assistants are opencode, qwen and claude")
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Resolve returns the first tool whose override variable is set or whose
// binary is on PATH.
func (r *Resolver) Resolve() (Selection, error) {
	tools, err := r.order()
	if err != nil {
		return Selection{}, err
	}
	for _, t := range tools {
		if cmd := strings.TrimSpace(r.getenv(t.OverrideEnv)); cmd != "" {
			return Selection{Tool: t, Override: cmd}, nil
		}
		if _, err := r.lookPath(t.Binary); err == nil {
			return Selection{Tool: t}, nil
		}
	}
	return Selection{}, xerr.NotFound("runtime", "no AI assistant found in PATH").
		WithHint("install claude, opencode or qwen, or set XLAUDE_CLAUDE_CMD")
}

// StdinMode controls the assistant's standard input in the foreground.
type StdinMode int

const (
	// StdinInherit passes the terminal through.
	StdinInherit StdinMode = iota
	// StdinNull detaches stdin, for piped or non-interactive use.
	StdinNull
)

// Launch runs the selection in dir in the foreground with the current
// environment plus env, and waits for it. A non-zero exit is an error.
//
// ctx only gates the start. Once running, the assistant shares the
// terminal's process group and handles interrupts itself; cancelling ctx
// does not kill it.
func Launch(ctx context.Context, sel Selection, dir string, env map[string]string, stdin StdinMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cmd *exec.Cmd
	if sel.Override != "" {
		cmd = exec.Command("sh", "-c", sel.Override)
	} else {
		cmd = exec.Command(sel.Tool.Binary, sel.Tool.DefaultArgs...)
	}
	cmd.Dir = dir
	cmd.Env = config.EnvForExecCommand(env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if stdin == StdinInherit {
		cmd.Stdin = os.Stdin
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return xerr.Wrap(xerr.KindExternalTool, "launch", err, "%s exited with status %d", sel.Tool.Name, exitErr.ExitCode())
		}
		return xerr.Wrap(xerr.KindExternalTool, "launch", err, "failed to launch %s", sel.Tool.Name)
	}
	return nil
}

// String implements fmt.Stringer.
func (s Selection) String() string {
	return fmt.Sprintf("%s (%s)", s.Tool.Name, s.Command())
}
