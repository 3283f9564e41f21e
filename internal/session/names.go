package session

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
)

// maxNamePart caps each human-readable part of a session name so tmux's
// status line stays legible; the hash suffix keeps names unique.
const maxNamePart = 24

// SessionName returns the deterministic tmux session name for a workspace
// key: "<prefix>-<repo>-<name>-<hash>". The hash is the low 32 bits of
// xxhash64(key), so two keys that sanitize to the same text still get
// distinct names, and any later process can rediscover the session.
func SessionName(prefix, key string) string {
	if prefix == "" {
		prefix = constants.SessionPrefix
	}
	repo, name := registry.SplitKey(key)
	return fmt.Sprintf("%s-%s-%s-%08x",
		prefix, sanitize(repo), sanitize(name), uint32(xxhash.Sum64String(key)))
}

// sanitize maps s onto [a-zA-Z0-9_-], the characters tmux accepts in a
// target without quoting.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNamePart {
			break
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// hasPrefix reports whether a tmux session name belongs to xlaude.
func hasPrefix(prefix, name string) bool {
	return strings.HasPrefix(name, prefix+"-")
}
