package claude

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idOld = "0b6c3f5e-8f43-4c1e-9a2b-2f1a7d0c1e01"
	idNew = "5d2a9e11-3b7c-4d8f-a1e2-9c0b4f6e7a02"
)

func writeTranscript(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func TestProjectDirName(t *testing.T) {
	assert.Equal(t, "-home-me-src-repo-foo", ProjectDirName("/home/me/src/repo-foo"))
	assert.Equal(t, "-home-me-my-repo", ProjectDirName("/home/me/my.repo/"))
}

func TestSessions(t *testing.T) {
	root := t.TempDir()
	wt := "/src/repo-foo"
	dir := filepath.Join(root, ProjectDirName(wt))

	writeTranscript(t, dir, idOld+".jsonl",
		`{"type":"user","timestamp":"2025-07-01T10:00:00Z","message":{"role":"user","content":"first question"}}`,
		`{"type":"assistant","timestamp":"2025-07-01T10:01:00Z","message":{"role":"assistant","content":[{"type":"text","text":"answer"}]}}`,
	)
	writeTranscript(t, dir, idNew+".jsonl",
		`{"type":"user","timestamp":"2025-07-02T09:00:00Z","message":{"role":"user","content":[{"type":"text","text":"fix   the\nflaky test"}]}}`,
		`{"type":"user","timestamp":"2025-07-02T09:05:00Z","message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]}}`,
		`{"type":"user","timestamp":"2025-07-02T09:06:00Z","message":{"role":"user","content":"<command-name>/clear</command-name>"}}`,
		`not json at all`,
	)
	writeTranscript(t, dir, "notes.jsonl", `{"type":"user"}`)
	writeTranscript(t, dir, "README.md", "ignored")

	h := NewHistory(root, nil)
	sessions, err := h.Sessions(wt, 3)
	require.NoError(t, err)
	require.Len(t, sessions, 2, "non-uuid transcripts are ignored")

	assert.Equal(t, idNew, sessions[0].ID)
	assert.Equal(t, "fix the flaky test", sessions[0].Preview)
	assert.True(t, sessions[0].LastUpdatedAt.Equal(time.Date(2025, 7, 2, 9, 6, 0, 0, time.UTC)))

	assert.Equal(t, idOld, sessions[1].ID)
	assert.Equal(t, "first question", sessions[1].Preview)

	limited, err := h.Sessions(wt, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, idNew, limited[0].ID)
}

func TestSessionsNoHistory(t *testing.T) {
	sessions, err := NewHistory(t.TempDir(), nil).Sessions("/src/none", 3)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionsModTimeFallback(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ProjectDirName("/src/x"))
	writeTranscript(t, dir, idOld+".jsonl", `{"type":"summary","summary":"no timestamps"}`)

	sessions, err := NewHistory(root, nil).Sessions("/src/x", 3)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].LastUpdatedAt.IsZero())
	assert.Empty(t, sessions[0].Preview)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))

	got := Truncate(strings.Repeat("a", 100), 10)
	assert.LessOrEqual(t, runewidth.StringWidth(got), 10)
	assert.True(t, strings.HasSuffix(got, "…"))

	// Wide characters count double.
	wide := Truncate("日本語のテキストです", 7)
	assert.LessOrEqual(t, runewidth.StringWidth(wide), 7)
}
