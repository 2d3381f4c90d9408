package lifecycle

import (
	"os/exec"
	"strings"
)

// RewriteCommand derives the final command line for a script: recognized
// interpreter invocations get that interpreter's no-buffering flag so
// output reaches the capture pipe line by line, and bare script files get
// the interpreter (or platform shell) prepended. Each rewrite applies at
// most once; a command that already carries the flag is left alone.
func RewriteCommand(command string) string {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "python "), strings.HasPrefix(lower, "python3 "),
		strings.HasPrefix(lower, "python.exe "):
		if hasLeadingFlag(trimmed, "-u") {
			return trimmed
		}
		return insertAfterFirstToken(trimmed, "-u")

	case strings.HasSuffix(lower, ".py") || strings.Contains(lower, ".py "):
		if strings.HasPrefix(lower, "python") || strings.HasPrefix(lower, "py ") {
			return trimmed
		}
		return "python -u " + trimmed

	case strings.HasPrefix(lower, "powershell "), strings.HasPrefix(lower, "pwsh "):
		if strings.Contains(lower, "-nobuffering") {
			return trimmed
		}
		return insertAfterFirstToken(trimmed, "-NoBuffering")

	case strings.HasSuffix(lower, ".ps1"):
		return "powershell -NoBuffering -ExecutionPolicy Bypass -File " + trimmed
	}

	return wrapShellScript(trimmed, lower)
}

// hasLeadingFlag reports whether flag appears among the option tokens
// directly following the interpreter, before the first non-option
// argument (a later occurrence would belong to the script itself).
func hasLeadingFlag(command, flag string) bool {
	tokens := strings.Fields(command)
	for _, tok := range tokens[1:] {
		if !strings.HasPrefix(tok, "-") {
			return false
		}
		if tok == flag {
			return true
		}
	}
	return false
}

func insertAfterFirstToken(command, flag string) string {
	i := strings.IndexAny(command, " \t")
	if i < 0 {
		return command + " " + flag
	}
	return command[:i] + " " + flag + command[i:]
}

// BuildCommand constructs an *exec.Cmd for the given command line. An
// explicit shell invocation already present in the command is honored
// without adding another layer; shell metacharacters force a shell; plain
// commands are executed directly.
func BuildCommand(command string) *exec.Cmd {
	cmdStr := strings.TrimSpace(command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command(noopCommand)
	}
	if after, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return shellCommand(after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// argument after -c, with one layer of surrounding quotes stripped so the
// shell sees the actual script.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range explicitShellPrefixes {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
