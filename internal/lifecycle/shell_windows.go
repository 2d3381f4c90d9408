//go:build windows

package lifecycle

import (
	"os/exec"
	"strings"
)

const noopCommand = "cmd"

var explicitShellPrefixes = []string{"cmd /c ", "cmd.exe /c "}

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}

// wrapShellScript wraps batch-file invocations with the command shell
// unless one is already explicit.
func wrapShellScript(trimmed, lower string) string {
	if (strings.HasSuffix(lower, ".bat") || strings.HasSuffix(lower, ".cmd")) &&
		!strings.HasPrefix(lower, "cmd ") {
		return `cmd /c "` + trimmed + `"`
	}
	return trimmed
}
