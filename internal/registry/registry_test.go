package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/xlaude/internal/xerr"
)

var t0 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func ws(repo, name, path string, created time.Time) Workspace {
	return Workspace{
		Name:      name,
		Branch:    name,
		Path:      path,
		RepoName:  repo,
		CreatedAt: created,
	}
}

func TestInsertListRemove(t *testing.T) {
	reg := New()
	require.Empty(t, reg.All())

	w := ws("repo", "foo", "/tmp/repo-foo", t0)
	require.NoError(t, reg.Insert(w))

	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "repo/foo", all[0].Key())

	removed, ok := reg.Remove("repo/foo")
	require.True(t, ok)
	assert.Equal(t, w, removed)
	assert.Empty(t, reg.All())

	_, ok = reg.Remove("repo/foo")
	assert.False(t, ok)
}

func TestInsertDuplicate(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(ws("repo", "foo", "/a", t0)))

	err := reg.Insert(ws("repo", "foo", "/b", t0))
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindConflict))

	// Same name in another repository is a different key.
	require.NoError(t, reg.Insert(ws("other", "foo", "/c", t0)))
	assert.Len(t, reg.FindByName("foo"), 2)
}

func TestInsertValidation(t *testing.T) {
	reg := New()
	for _, w := range []Workspace{
		ws("", "foo", "/a", t0),
		ws("repo", "", "/a", t0),
		ws("repo", "a/b", "/a", t0),
		ws("repo", "foo", "", t0),
	} {
		err := reg.Insert(w)
		require.Error(t, err, "%+v", w)
		assert.True(t, xerr.Is(err, xerr.KindInvalid))
	}
}

func TestAllOrderedByCreation(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(ws("repo", "late", "/c", t0.Add(2*time.Hour))))
	require.NoError(t, reg.Insert(ws("repo", "early", "/a", t0)))
	require.NoError(t, reg.Insert(ws("repo", "mid", "/b", t0.Add(time.Hour))))
	require.NoError(t, reg.Insert(ws("a-repo", "tie", "/d", t0)))

	var names []string
	for _, w := range reg.All() {
		names = append(names, w.Key())
	}
	assert.Equal(t, []string{"a-repo/tie", "repo/early", "repo/mid", "repo/late"}, names)
	assert.Equal(t, []string{"a-repo", "repo"}, reg.Repositories())
}

func TestRenamePreservesFields(t *testing.T) {
	reg := New()
	w := ws("repo", "foo", "/tmp/repo-foo", t0)
	w.Branch = "feature/foo"
	w.Sessions = []Session{{ID: "s1", LastUpdatedAt: t0, Preview: "hello"}}
	require.NoError(t, reg.Insert(w))

	renamed, err := reg.Rename("repo/foo", "bar")
	require.NoError(t, err)
	assert.Equal(t, "repo/bar", renamed.Key())

	got, ok := reg.Find("repo/bar")
	require.True(t, ok)
	assert.Equal(t, w.Path, got.Path)
	assert.Equal(t, w.Branch, got.Branch)
	assert.True(t, w.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, w.Sessions, got.Sessions)

	_, ok = reg.Find("repo/foo")
	assert.False(t, ok)
}

func TestRenameErrors(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(ws("repo", "foo", "/a", t0)))
	require.NoError(t, reg.Insert(ws("repo", "bar", "/b", t0)))

	_, err := reg.Rename("repo/missing", "x")
	assert.True(t, xerr.Is(err, xerr.KindNotFound))

	_, err = reg.Rename("repo/foo", "bar")
	assert.True(t, xerr.Is(err, xerr.KindConflict))

	// Conflict check is case-sensitive.
	_, err = reg.Rename("repo/foo", "Bar")
	require.NoError(t, err)

	_, err = reg.Rename("repo/Bar", "Bar")
	require.NoError(t, err, "renaming to the same name is a no-op")

	_, err = reg.Rename("repo/Bar", "a/b")
	assert.True(t, xerr.Is(err, xerr.KindInvalid))
}

func TestFindReturnsCopy(t *testing.T) {
	reg := New()
	w := ws("repo", "foo", "/a", t0)
	w.Sessions = []Session{{ID: "s1", LastUpdatedAt: t0}}
	require.NoError(t, reg.Insert(w))

	got, _ := reg.Find("repo/foo")
	got.Path = "/mutated"
	got.Sessions[0].Preview = "mutated"

	again, _ := reg.Find("repo/foo")
	assert.Equal(t, "/a", again.Path)
	assert.Empty(t, again.Sessions[0].Preview)
}

func TestRecordSession(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(ws("repo", "foo", "/a", t0)))

	require.NoError(t, reg.RecordSession("repo/foo", Session{ID: "a", LastUpdatedAt: t0.Add(time.Minute), Preview: "first"}))
	require.NoError(t, reg.RecordSession("repo/foo", Session{ID: "b", LastUpdatedAt: t0, Preview: "older"}))
	// Stale update of "a" is ignored.
	require.NoError(t, reg.RecordSession("repo/foo", Session{ID: "a", LastUpdatedAt: t0, Preview: "stale"}))
	// Fresh update of "b" refreshes it in place.
	require.NoError(t, reg.RecordSession("repo/foo", Session{ID: "b", LastUpdatedAt: t0.Add(time.Hour), Preview: "newest"}))

	got, _ := reg.Find("repo/foo")
	require.Len(t, got.Sessions, 2)
	assert.Equal(t, "a", got.Sessions[0].ID, "chronological order")
	assert.Equal(t, "first", got.Sessions[0].Preview)
	assert.Equal(t, "newest", got.Sessions[1].Preview)

	err := reg.RecordSession("repo/missing", Session{ID: "x"})
	assert.True(t, xerr.Is(err, xerr.KindNotFound))
}

func TestRecentSessions(t *testing.T) {
	w := ws("repo", "foo", "/a", t0)
	for i := 0; i < 5; i++ {
		w.Sessions = append(w.Sessions, Session{ID: string(rune('a' + i)), LastUpdatedAt: t0.Add(time.Duration(i) * time.Minute)})
	}

	recent := w.RecentSessions(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)
	assert.Equal(t, "c", recent[2].ID)
	assert.Equal(t, "a", w.Sessions[0].ID, "RecentSessions must not reorder the workspace")
}

func TestSplitKey(t *testing.T) {
	repo, name := SplitKey("repo/foo")
	assert.Equal(t, "repo", repo)
	assert.Equal(t, "foo", name)

	repo, name = SplitKey("foo")
	assert.Empty(t, repo)
	assert.Equal(t, "foo", name)
}
