//go:build !windows

package lifecycle

import (
	"os/exec"
	"strings"
)

const noopCommand = "/bin/true"

var explicitShellPrefixes = []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c ", "bash -c ", "/bin/bash -c "}

func shellCommand(script string) *exec.Cmd {
	// Absolute shell path avoids PATH dependence when env is overridden.
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

// wrapShellScript runs bare shell-script invocations under the platform
// shell unless a shell is already explicit.
func wrapShellScript(trimmed, lower string) string {
	if strings.HasSuffix(lower, ".sh") &&
		!strings.HasPrefix(lower, "sh ") && !strings.HasPrefix(lower, "bash ") &&
		!strings.HasPrefix(lower, "/bin/sh ") && !strings.HasPrefix(lower, "/bin/bash ") {
		return "sh " + trimmed
	}
	return trimmed
}
