package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/leowmjw/xlaude/internal/constants"
	"github.com/leowmjw/xlaude/internal/registry"
	"github.com/leowmjw/xlaude/internal/style"
	"github.com/leowmjw/xlaude/internal/xerr"
)

// stdin is shared so buffered piped input is not lost between reads.
var stdin = bufio.NewReader(os.Stdin)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// isPipedInput reports whether stdin is a pipe or file rather than a TTY.
func isPipedInput() bool {
	if isTerminal(os.Stdin) {
		return false
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&(os.ModeNamedPipe|os.ModeCharDevice) == os.ModeNamedPipe || fi.Mode().IsRegular()
}

// readPipedLine returns the next non-empty line of stdin, or "" at EOF.
func readPipedLine() (string, error) {
	for {
		line, err := stdin.ReadString('\n')
		if s := strings.TrimSpace(line); s != "" {
			return s, nil
		}
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", xerr.Wrap(xerr.KindIO, "stdin", err, "reading input")
		}
	}
}

// drainStdin discards piped input so an assistant started afterwards does
// not consume it.
func drainStdin() {
	_, _ = io.Copy(io.Discard, stdin)
}

func autoYes() bool {
	return yesFlag || os.Getenv(constants.EnvYes) == "1"
}

// confirm asks a yes/no question. --yes or XLAUDE_YES=1 answer yes; a
// piped line answers for a script; with neither a TTY nor input the
// default is taken.
func confirm(question string, def bool) (bool, error) {
	if autoYes() {
		return true, nil
	}
	choices := "[y/N]"
	if def {
		choices = "[Y/n]"
	}

	var answer string
	switch {
	case isPipedInput():
		line, err := readPipedLine()
		if err != nil {
			return false, err
		}
		answer = line
	case isTerminal(os.Stdin):
		fmt.Printf("%s %s ", question, choices)
		line, err := stdin.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, xerr.Wrap(xerr.KindIO, "stdin", err, "reading answer")
		}
		answer = strings.TrimSpace(line)
	default:
		return def, nil
	}

	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// selectWorkspace asks the user to pick one of list on a TTY.
func selectWorkspace(list []registry.Workspace) (registry.Workspace, error) {
	if !isTerminal(os.Stdin) {
		return registry.Workspace{}, xerr.Invalid("select", "no workspace given").
			WithHint("pass a workspace name; interactive selection needs a terminal")
	}
	for i, ws := range list {
		fmt.Printf("  %s %s %s\n", style.Bold.Render(strconv.Itoa(i+1)+"."), ws.Key(), style.Dim.Render(ws.Path))
	}
	fmt.Print("Select a workspace: ")
	line, err := stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return registry.Workspace{}, xerr.Wrap(xerr.KindIO, "select", err, "reading choice")
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(list) {
		return registry.Workspace{}, xerr.Invalid("select", "invalid choice %q", strings.TrimSpace(line))
	}
	return list[n-1], nil
}
