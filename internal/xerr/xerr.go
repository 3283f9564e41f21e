// Package xerr defines the error taxonomy shared by the registry, the
// reconciler, the session orchestrator and the CLI.
//
// Every failure that crosses a package boundary is either a sentinel from a
// gateway package (tmux.ErrSessionNotFound, ...) wrapped with context, or an
// *Error carrying a Kind. Callers branch on the Kind, never on message text.
package xerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and display.
type Kind int

const (
	// KindUnknown is any error that was not classified.
	KindUnknown Kind = iota
	// KindNotFound means a workspace or session is absent.
	KindNotFound
	// KindConflict means a duplicate key or a naming collision.
	KindConflict
	// KindExternalTool means git or tmux failed or returned unparsable output.
	KindExternalTool
	// KindStateCorrupt means the persisted registry is unreadable and not a
	// recognized legacy layout. It is the only fatal kind.
	KindStateCorrupt
	// KindIO means a filesystem failure reading or writing persisted state.
	KindIO
	// KindInvalid means the caller supplied an unusable argument.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindExternalTool:
		return "external tool error"
	case KindStateCorrupt:
		return "state corrupt"
	case KindIO:
		return "io error"
	case KindInvalid:
		return "invalid argument"
	default:
		return "error"
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "registry.rename"
	Message string
	Hint    string // optional suggestion shown by the CLI
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithHint sets a suggestion and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// New returns a classified error with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause. Returns nil when cause is nil.
func Wrap(kind Kind, op string, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// NotFound returns a KindNotFound error.
func NotFound(op, format string, args ...interface{}) *Error {
	return New(KindNotFound, op, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(op, format string, args ...interface{}) *Error {
	return New(KindConflict, op, format, args...)
}

// Invalid returns a KindInvalid error.
func Invalid(op, format string, args ...interface{}) *Error {
	return New(KindInvalid, op, format, args...)
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	return Is(err, KindStateCorrupt)
}

// Format renders err for a terminal: a kind prefix, the message, and the
// hint when one is present. StateCorrupt errors are rendered verbatim so
// that the user sees exactly what could not be parsed.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Error: " + err.Error()
	}
	if e.Kind == KindStateCorrupt {
		return err.Error()
	}

	var sb strings.Builder
	switch e.Kind {
	case KindNotFound:
		sb.WriteString("Not found: ")
	case KindConflict:
		sb.WriteString("Conflict: ")
	case KindInvalid:
		sb.WriteString("Usage error: ")
	default:
		sb.WriteString("Error: ")
	}
	sb.WriteString(err.Error())
	if e.Hint != "" {
		sb.WriteString("\n\nTry: ")
		sb.WriteString(e.Hint)
	}
	return sb.String()
}
