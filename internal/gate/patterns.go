package gate

import (
	"path/filepath"
	"strings"
)

// safeCommands are read-only commands that cannot mutate state on their own.
// A command line whose program is on this list short-circuits to full
// formality.
var safeCommands = map[string]bool{
	"cat": true, "cd": true, "cut": true, "echo": true, "expr": true,
	"false": true, "grep": true, "head": true, "id": true, "ls": true,
	"nl": true, "paste": true, "pwd": true, "rev": true, "seq": true,
	"stat": true, "tail": true, "tr": true, "true": true, "uname": true,
	"uniq": true, "wc": true, "which": true, "whoami": true,
}

// safeGitSubcommands are git invocations that only inspect the repository.
var safeGitSubcommands = map[string]bool{
	"branch": true, "status": true, "log": true, "diff": true, "show": true,
}

// unsafeFindArgs are find options that delete files or execute programs.
var unsafeFindArgs = []string{"-exec", "-execdir", "-ok", "-okdir", "-delete", "-fls", "-fprint"}

// unsafeRgArgs are ripgrep options that spawn external programs.
var unsafeRgArgs = []string{"--pre", "--hostname-bin", "--search-zip", "-z"}

// DangerousPatterns are substrings that mark a command line as destructive
// wherever they appear, including inside pipelines and shell wrappers.
var DangerousPatterns = []string{
	"rm -rf", "rm -fr", "rm -f", "rm -r",
	"git reset", "git rm", "git push",
	":(){ :|:& };:",
	"> /dev/sd",
	"dd if=",
	"mkfs",
	"chmod -R 777",
	"chown -R",
}

// IsKnownSafe reports whether a command line is a known read-only command.
// Shell wrappers such as "bash -c" are judged by their inner script.
// Redirection, chaining and substitution defeat single-program judgment, so
// any command containing those is never known safe.
func IsKnownSafe(command string) bool {
	if strings.ContainsAny(command, ">|;&`$") {
		return false
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return false
	}

	name := programName(argv[0])
	if isShellWrapper(name) {
		inner, ok := wrappedScript(argv)
		if !ok {
			return false
		}
		return IsKnownSafe(inner)
	}

	if safeCommands[name] {
		return true
	}

	switch name {
	case "git":
		return len(argv) > 1 && safeGitSubcommands[argv[1]]
	case "find":
		return !containsAny(argv, unsafeFindArgs)
	case "rg":
		return !containsAny(argv, unsafeRgArgs)
	}
	return false
}

// IsDangerous reports whether a command line matches a destructive pattern.
// Known-safe commands are never dangerous; sudo and shell wrappers are
// unwrapped and their inner command judged as well.
func IsDangerous(command string) bool {
	if IsKnownSafe(command) {
		return false
	}

	argv := strings.Fields(command)
	if len(argv) == 0 {
		return false
	}

	if programName(argv[0]) == "sudo" && len(argv) > 1 {
		if IsDangerous(strings.Join(argv[1:], " ")) {
			return true
		}
	}

	if isShellWrapper(programName(argv[0])) {
		if inner, ok := wrappedScript(argv); ok && IsDangerous(inner) {
			return true
		}
	}

	if dangerousProgram(argv) {
		return true
	}

	for _, pattern := range DangerousPatterns {
		if strings.Contains(command, pattern) {
			return true
		}
	}
	return false
}

// dangerousProgram checks the command's program and arguments for known
// destructive invocations.
func dangerousProgram(argv []string) bool {
	name := programName(argv[0])
	switch {
	case name == "git":
		if len(argv) > 1 {
			switch argv[1] {
			case "reset", "rm", "push":
				return true
			}
		}
	case name == "rm":
		return containsAny(argv, []string{"-rf", "-fr", "-r", "-f"})
	case name == "mv":
		for _, arg := range argv[1:] {
			if strings.HasPrefix(arg, "/etc") || strings.HasPrefix(arg, "/bin") || strings.HasPrefix(arg, "/usr") {
				return true
			}
		}
	case name == "dd", name == "fdisk", name == "reboot", name == "shutdown":
		return true
	case strings.HasPrefix(name, "mkfs"):
		return true
	case name == "kill":
		return containsAny(argv, []string{"-9", "1"})
	}
	return false
}

// programName normalizes an argv[0] to a bare program name, treating zsh as
// bash.
func programName(arg0 string) string {
	name := filepath.Base(arg0)
	if name == "zsh" {
		return "bash"
	}
	return name
}

func isShellWrapper(name string) bool {
	return name == "bash" || name == "sh"
}

// wrappedScript extracts the script following a -c or -lc flag.
func wrappedScript(argv []string) (string, bool) {
	for i, arg := range argv {
		if (arg == "-c" || arg == "-lc") && i+1 < len(argv) {
			return strings.Join(argv[i+1:], " "), true
		}
	}
	return "", false
}

func containsAny(argv []string, needles []string) bool {
	for _, arg := range argv {
		for _, n := range needles {
			if arg == n {
				return true
			}
		}
	}
	return false
}
