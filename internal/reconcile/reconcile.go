// Package reconcile drops registry entries whose worktree no longer exists
// in git.
//
// Reconciliation is split into a pure Plan, computed from the registry and
// a snapshot of git's worktree list, and an Apply that executes it. Both
// are idempotent: applying a plan twice, or reconciling against the same
// snapshot twice, removes nothing the second time.
package reconcile

import (
	"path/filepath"
	"sort"

	"github.com/leowmjw/xlaude/internal/registry"
)

// Snapshot is the set of worktree paths git currently knows about.
type Snapshot map[string]struct{}

// NewSnapshot builds a Snapshot from paths. Paths are cleaned so that
// trailing slashes and "." segments do not cause false drops.
func NewSnapshot(paths ...string) Snapshot {
	s := make(Snapshot, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add records a path.
func (s Snapshot) Add(path string) {
	s[filepath.Clean(path)] = struct{}{}
}

// Has reports whether path is in the snapshot.
func (s Snapshot) Has(path string) bool {
	_, ok := s[filepath.Clean(path)]
	return ok
}

// RepairPlan lists the registry keys to remove.
type RepairPlan struct {
	ToDrop []string
}

// Empty reports whether the plan changes nothing.
func (p RepairPlan) Empty() bool {
	return len(p.ToDrop) == 0
}

// Plan returns every workspace whose path is absent from snapshot. Branch
// drift is ignored: a workspace whose tree now has another branch checked
// out is still a live workspace.
func Plan(reg *registry.Registry, snapshot Snapshot) RepairPlan {
	return plan(reg.All(), snapshot)
}

// PlanRepo is Plan restricted to one repository's entries.
func PlanRepo(reg *registry.Registry, repo string, snapshot Snapshot) RepairPlan {
	return plan(reg.InRepository(repo), snapshot)
}

func plan(workspaces []registry.Workspace, snapshot Snapshot) RepairPlan {
	var p RepairPlan
	for _, ws := range workspaces {
		if !snapshot.Has(ws.Path) {
			p.ToDrop = append(p.ToDrop, ws.Key())
		}
	}
	sort.Strings(p.ToDrop)
	return p
}

// Apply removes the plan's entries from reg and returns how many were
// present. Keys already gone are skipped.
func Apply(p RepairPlan, reg *registry.Registry) int {
	removed := 0
	for _, key := range p.ToDrop {
		if _, ok := reg.Remove(key); ok {
			removed++
		}
	}
	return removed
}
