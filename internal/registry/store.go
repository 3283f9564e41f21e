package registry

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/leowmjw/xlaude/internal/util"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// UnknownRepo is assigned to legacy entries that carry no repository name.
const UnknownRepo = "unknown"

// document is the on-disk shape of the state file.
type document struct {
	Worktrees map[string]*Workspace `json:"worktrees"`
}

// Store loads and saves a Registry at a fixed path.
//
// Saves replace the whole file atomically, so concurrent xlaude processes
// never observe a partial document. Concurrent writers are not merged: the
// last Save wins.
type Store struct {
	path     string
	logger   *log.Logger
	migrated bool
}

// NewStore returns a store for the state file at path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.NewWithOptions(io.Discard, log.Options{Prefix: "registry"}),
	}
}

// WithLogger sets the logger used to report migrations.
func (s *Store) WithLogger(l *log.Logger) *Store {
	if l != nil {
		s.logger = l.WithPrefix("registry")
	}
	return s
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing file yields an empty registry. A
// document in the legacy layout (keys without the repository prefix) is
// upgraded and written back once. Anything else that cannot be parsed is
// reported as KindStateCorrupt and the file is left untouched.
func (s *Store) Load() (*Registry, error) {
	const op = "registry.load"

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, xerr.Wrap(xerr.KindIO, op, err, "reading %s", s.path)
	}

	reg, migrated, err := decode(data)
	if err != nil {
		return nil, &xerr.Error{
			Kind:    xerr.KindStateCorrupt,
			Op:      op,
			Message: "state file " + s.path + " is corrupt",
			Hint:    "inspect or move the file aside; xlaude will not overwrite it",
			Err:     err,
		}
	}

	if migrated && !s.migrated {
		s.logger.Info("upgrading legacy state keys", "path", s.path, "workspaces", reg.Len())
		if err := s.Save(reg); err != nil {
			return nil, err
		}
		s.migrated = true
	}
	return reg, nil
}

// Save writes reg to disk atomically, creating the parent directory.
func (s *Store) Save(reg *Registry) error {
	doc := document{Worktrees: make(map[string]*Workspace, reg.Len())}
	for key, w := range reg.entries {
		c := w.clone()
		doc.Worktrees[key] = &c
	}
	if err := util.EnsureDirAndWriteJSON(s.path, doc); err != nil {
		return xerr.Wrap(xerr.KindIO, "registry.save", err, "writing %s", s.path)
	}
	return nil
}

// decode parses a state document and upgrades legacy keys. It reports
// whether any key was rewritten.
func decode(data []byte) (*Registry, bool, error) {
	reg := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return reg, false, nil
	}

	doc, err := parseDocument(data)
	if err != nil {
		return nil, false, err
	}

	migrated := false
	for key, w := range doc.Worktrees {
		if w == nil {
			return nil, false, xerr.Invalid("decode", "entry %q is null", key)
		}
		if w.Name == "" || w.Path == "" {
			return nil, false, xerr.Invalid("decode", "entry %q is missing name or path", key)
		}
		if w.RepoName == "" {
			if repo, _ := SplitKey(key); repo != "" {
				w.RepoName = repo
			} else {
				w.RepoName = UnknownRepo
			}
		}
		canonical := w.Key()
		if canonical != key {
			migrated = true
		}
		if _, dup := reg.entries[canonical]; dup {
			return nil, false, xerr.Conflict("decode", "entries collide on key %q", canonical)
		}
		if err := w.validate("decode"); err != nil {
			return nil, false, err
		}
		sortSessions(w.Sessions)
		reg.entries[canonical] = w
	}
	return reg, migrated, nil
}

// parseDocument requires a JSON object whose only member is a non-null
// "worktrees" mapping. Any other shape would load as an empty registry and
// be overwritten by the next save.
func parseDocument(data []byte) (document, error) {
	var doc document
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return doc, err
	}
	if top == nil {
		return doc, xerr.Invalid("decode", "document is null")
	}
	for field := range top {
		if field != "worktrees" {
			return doc, xerr.Invalid("decode", "unknown field %q", field)
		}
	}
	raw, ok := top["worktrees"]
	if !ok {
		return doc, xerr.Invalid("decode", "missing \"worktrees\"")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return doc, xerr.Invalid("decode", "\"worktrees\" is null")
	}
	if err := json.Unmarshal(raw, &doc.Worktrees); err != nil {
		return doc, err
	}
	return doc, nil
}
