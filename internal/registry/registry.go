// Package registry holds the persisted mapping of workspace identity to
// workspace metadata.
//
// The Registry is pure data plus invariants: it performs no git, tmux or
// filesystem work beyond what Store does to load and save it. Commands load
// a Registry at start, mutate it in memory, and save it back through the
// same Store.
package registry

import (
	"sort"
	"strings"
	"time"

	"github.com/leowmjw/xlaude/internal/xerr"
)

// KeySeparator joins repository and workspace names in a key.
const KeySeparator = "/"

// Session summarizes one AI-assistant conversation held in a workspace.
type Session struct {
	// ID is the assistant's conversation identifier. Empty when the
	// assistant does not expose one.
	ID string `json:"id,omitempty"`

	// LastUpdatedAt is the time of the most recent activity.
	LastUpdatedAt time.Time `json:"last_updated_at"`

	// Preview is a short excerpt of the last user message.
	Preview string `json:"preview"`
}

// Workspace is one managed linked working tree.
type Workspace struct {
	Name      string    `json:"name"`
	Branch    string    `json:"branch"`
	Path      string    `json:"path"`
	RepoName  string    `json:"repo_name"`
	CreatedAt time.Time `json:"created_at"`

	// Sessions are kept in chronological order (oldest first).
	Sessions []Session `json:"sessions,omitempty"`
}

// MakeKey returns the registry key for a repository and workspace name.
func MakeKey(repoName, name string) string {
	return repoName + KeySeparator + name
}

// SplitKey splits a key into repository and workspace name. Keys without a
// separator are returned as a bare name with an empty repository.
func SplitKey(key string) (repoName, name string) {
	i := strings.Index(key, KeySeparator)
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

// Key returns the workspace's registry key.
func (w Workspace) Key() string {
	return MakeKey(w.RepoName, w.Name)
}

// RecentSessions returns up to n sessions ordered by LastUpdatedAt, newest first.
func (w Workspace) RecentSessions(n int) []Session {
	out := make([]Session, len(w.Sessions))
	copy(out, w.Sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// clone returns a deep copy so callers never alias registry storage.
func (w Workspace) clone() Workspace {
	if w.Sessions != nil {
		s := make([]Session, len(w.Sessions))
		copy(s, w.Sessions)
		w.Sessions = s
	}
	return w
}

func (w Workspace) validate(op string) error {
	switch {
	case w.RepoName == "":
		return xerr.Invalid(op, "workspace has no repository name")
	case w.Name == "":
		return xerr.Invalid(op, "workspace has no name")
	case strings.Contains(w.Name, KeySeparator):
		return xerr.Invalid(op, "workspace name %q must not contain %q", w.Name, KeySeparator)
	case w.Path == "":
		return xerr.Invalid(op, "workspace %q has no path", w.Key())
	}
	return nil
}

// Registry is the in-memory set of workspaces keyed by Workspace.Key.
// It is not safe for concurrent use; xlaude's core is single-threaded.
type Registry struct {
	entries map[string]*Workspace
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Workspace)}
}

// Len returns the number of workspaces.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	c := New()
	for k, w := range r.entries {
		cw := w.clone()
		c.entries[k] = &cw
	}
	return c
}

// Insert adds w. The key must not already exist.
func (r *Registry) Insert(w Workspace) error {
	const op = "registry.insert"
	if err := w.validate(op); err != nil {
		return err
	}
	key := w.Key()
	if _, ok := r.entries[key]; ok {
		return xerr.Conflict(op, "workspace %q already exists", key)
	}
	w = w.clone()
	r.entries[key] = &w
	return nil
}

// Remove deletes the workspace with key and returns it.
func (r *Registry) Remove(key string) (Workspace, bool) {
	w, ok := r.entries[key]
	if !ok {
		return Workspace{}, false
	}
	delete(r.entries, key)
	return *w, true
}

// Rename changes the workspace name of oldKey to newName and recomputes its
// key. Path, branch, creation time and sessions are untouched; no git or
// filesystem side effect happens here.
func (r *Registry) Rename(oldKey, newName string) (Workspace, error) {
	const op = "registry.rename"
	w, ok := r.entries[oldKey]
	if !ok {
		return Workspace{}, xerr.NotFound(op, "workspace %q not found", oldKey)
	}
	if newName == "" || strings.Contains(newName, KeySeparator) {
		return Workspace{}, xerr.Invalid(op, "invalid workspace name %q", newName)
	}
	newKey := MakeKey(w.RepoName, newName)
	if newKey == oldKey {
		return w.clone(), nil
	}
	if _, taken := r.entries[newKey]; taken {
		return Workspace{}, xerr.Conflict(op, "workspace %q already exists", newKey)
	}
	delete(r.entries, oldKey)
	w.Name = newName
	r.entries[newKey] = w
	return w.clone(), nil
}

// Find returns the workspace with key.
func (r *Registry) Find(key string) (Workspace, bool) {
	w, ok := r.entries[key]
	if !ok {
		return Workspace{}, false
	}
	return w.clone(), true
}

// FindByName returns every workspace named name, across repositories,
// ordered like All.
func (r *Registry) FindByName(name string) []Workspace {
	var out []Workspace
	for _, w := range r.All() {
		if w.Name == name {
			out = append(out, w)
		}
	}
	return out
}

// FindByPath returns the first workspace, ordered like All, whose path is path.
func (r *Registry) FindByPath(path string) (Workspace, bool) {
	for _, w := range r.All() {
		if w.Path == path {
			return w, true
		}
	}
	return Workspace{}, false
}

// All returns every workspace ordered by creation time, key breaking ties.
func (r *Registry) All() []Workspace {
	out := make([]Workspace, 0, len(r.entries))
	for _, w := range r.entries {
		out = append(out, w.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Keys returns every key, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Repositories returns the distinct repository names, sorted.
func (r *Registry) Repositories() []string {
	seen := make(map[string]struct{})
	for _, w := range r.entries {
		seen[w.RepoName] = struct{}{}
	}
	repos := make([]string, 0, len(seen))
	for repo := range seen {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	return repos
}

// InRepository returns the workspaces of one repository, ordered like All.
func (r *Registry) InRepository(repoName string) []Workspace {
	var out []Workspace
	for _, w := range r.All() {
		if w.RepoName == repoName {
			out = append(out, w)
		}
	}
	return out
}

// RecordSession attaches s to the workspace with key. A session whose ID is
// already recorded is refreshed when s is newer; otherwise s is appended.
// Sessions are never removed.
func (r *Registry) RecordSession(key string, s Session) error {
	const op = "registry.record_session"
	w, ok := r.entries[key]
	if !ok {
		return xerr.NotFound(op, "workspace %q not found", key)
	}
	if s.ID != "" {
		for i := range w.Sessions {
			if w.Sessions[i].ID != s.ID {
				continue
			}
			if s.LastUpdatedAt.After(w.Sessions[i].LastUpdatedAt) {
				w.Sessions[i].LastUpdatedAt = s.LastUpdatedAt
				w.Sessions[i].Preview = s.Preview
				sortSessions(w.Sessions)
			}
			return nil
		}
	}
	w.Sessions = append(w.Sessions, s)
	sortSessions(w.Sessions)
	return nil
}

func sortSessions(s []Session) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].LastUpdatedAt.Before(s[j].LastUpdatedAt)
	})
}
