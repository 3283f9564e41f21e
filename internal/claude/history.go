// Package claude reads the assistant's per-project conversation history so
// workspaces can show their recent sessions.
//
// Claude keeps one JSONL transcript per conversation under
// ~/.claude/projects/<encoded project path>/<conversation uuid>.jsonl.
// Only the timestamp and the last user message are extracted.
package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
)

// maxLineSize bounds a single transcript line; tool results can be large.
const maxLineSize = 4 * 1024 * 1024

// DefaultRoot returns ~/.claude/projects.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// ProjectDirName encodes a worktree path the way Claude names its project
// directories: every character outside [a-zA-Z0-9-] becomes "-".
func ProjectDirName(path string) string {
	var b strings.Builder
	for _, r := range filepath.Clean(path) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// History scans conversation transcripts below a projects root.
type History struct {
	root   string
	logger *log.Logger
}

// NewHistory returns a History rooted at root.
func NewHistory(root string, logger *log.Logger) *History {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &History{root: root, logger: logger.WithPrefix("claude")}
}

// Sessions returns up to limit conversations recorded for the worktree at
// path, most recent first. A worktree with no history yields no sessions
// and no error. Unreadable transcripts are skipped.
func (h *History) Sessions(path string, limit int) ([]registry.Session, error) {
	dir := filepath.Join(h.root, ProjectDirName(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var sessions []registry.Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".jsonl" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".jsonl"))
		if err != nil {
			continue
		}
		s, err := readTranscript(filepath.Join(dir, name))
		if err != nil {
			h.logger.Debug("skipping transcript", "file", name, "err", err)
			continue
		}
		s.ID = id.String()
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUpdatedAt.After(sessions[j].LastUpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// entry is the subset of a transcript line that is read.
type entry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// readTranscript returns the last user message and the latest timestamp.
// Files without timestamps fall back to their modification time.
func readTranscript(path string) (registry.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return registry.Session{}, err
	}
	defer f.Close()

	var s registry.Session
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Timestamp.After(s.LastUpdatedAt) {
			s.LastUpdatedAt = e.Timestamp
		}
		if e.Type != "user" || e.Message.Role != "user" {
			continue
		}
		if text := userText(e.Message.Content); text != "" {
			s.Preview = Truncate(text, constants.PreviewMaxWidth)
		}
	}
	if err := sc.Err(); err != nil {
		return registry.Session{}, err
	}

	if s.LastUpdatedAt.IsZero() {
		info, err := f.Stat()
		if err != nil {
			return registry.Session{}, err
		}
		s.LastUpdatedAt = info.ModTime()
	}
	s.LastUpdatedAt = s.LastUpdatedAt.UTC()
	return s, nil
}

// userText extracts typed text from a message's content, which is either a
// string or a list of blocks. Tool results and command echoes, which the
// user did not type, yield "".
func userText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		text = strings.Join(parts, " ")
	}
	text = strings.Join(strings.Fields(text), " ")
	if strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

// Truncate cuts s to at most width terminal cells, marking the cut with "…".
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
