package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leowmjw/xlaude/internal/claude"
	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/style"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: GroupWorkspace,
	Short:   "List workspaces with their recent assistant sessions",
	Long: `List every workspace grouped by repository, with its session state and
up to three recent Claude conversations found in ~/.claude/projects.

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}

// WorkspaceInfo is one entry of `xlaude list --json`.
type WorkspaceInfo struct {
	Key       string             `json:"key"`
	Name      string             `json:"name"`
	Repo      string             `json:"repo_name"`
	Branch    string             `json:"branch"`
	Path      string             `json:"path"`
	CreatedAt time.Time          `json:"created_at"`
	State     session.State      `json:"state"`
	Session   string             `json:"session"`
	Recent    []registry.Session `json:"recent_sessions"`
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	reg, err := a.store.Load()
	if err != nil {
		return err
	}

	if recordHistory(reg) {
		if err := a.store.Save(reg); err != nil {
			logger.Warn("saving session history", "err", err)
		}
	}

	states := make(map[string]session.State)
	live, err := a.sessions.Live(a.ctx, reg)
	if err != nil {
		logger.Debug("listing tmux sessions", "err", err)
	}
	for _, ls := range live {
		states[ls.WorkspaceKey] = ls.State
	}

	infos := make([]WorkspaceInfo, 0, reg.Len())
	for _, ws := range reg.All() {
		recent := ws.RecentSessions(constants.RecentSessionLimit)
		if recent == nil {
			recent = []registry.Session{}
		}
		infos = append(infos, WorkspaceInfo{
			Key:       ws.Key(),
			Name:      ws.Name,
			Repo:      ws.RepoName,
			Branch:    ws.Branch,
			Path:      ws.Path,
			CreatedAt: ws.CreatedAt,
			State:     states[ws.Key()],
			Session:   a.sessions.SessionName(ws.Key()),
			Recent:    recent,
		})
	}

	// Group by repository, oldest workspace first within each.
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Repo < infos[j].Repo })

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No workspaces. Create one with 'xlaude create'.")
		return nil
	}
	repo := ""
	for _, info := range infos {
		if info.Repo != repo {
			if repo != "" {
				fmt.Println()
			}
			repo = info.Repo
			fmt.Println(style.Bold.Render(repo))
		}
		fmt.Printf("  %s %s  %s\n", style.Info.Render(info.Name), style.Dim.Render("("+info.Branch+")"), stateText(info.State))
		fmt.Printf("    %s\n", style.Dim.Render(info.Path))
		fmt.Printf("    %s\n", style.Dim.Render("created "+humanize.Time(info.CreatedAt)))
		for _, s := range info.Recent {
			preview := s.Preview
			if preview == "" {
				preview = "(no message)"
			}
			fmt.Printf("    %s %s %s\n", style.ArrowPrefix, style.Dim.Render(humanize.Time(s.LastUpdatedAt)+":"), preview)
		}
	}
	return nil
}

// recordHistory copies recent Claude conversations into the registry and
// reports whether anything was recorded. A missing history is not an error.
func recordHistory(reg *registry.Registry) bool {
	root, err := claude.DefaultRoot()
	if err != nil {
		return false
	}
	history := claude.NewHistory(root, logger)
	changed := false
	for _, ws := range reg.All() {
		sessions, err := history.Sessions(ws.Path, constants.RecentSessionLimit)
		if err != nil {
			logger.Debug("reading history", "workspace", ws.Key(), "err", err)
			continue
		}
		for _, s := range sessions {
			if err := reg.RecordSession(ws.Key(), s); err == nil {
				changed = true
			}
		}
	}
	return changed
}

func stateText(s session.State) string {
	switch s {
	case session.Running:
		return style.Success.Render(s.Label())
	case session.Unknown:
		return style.Warning.Render(s.Label())
	default:
		return style.Dim.Render(s.Label())
	}
}
