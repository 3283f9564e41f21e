// xlaude manages git worktrees as AI coding workspaces.
package main

import (
	"os"

	"github.com/leowmjw/xlaude/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
