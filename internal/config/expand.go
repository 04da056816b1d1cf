package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unchanged if we can't get home
		}
		return filepath.Join(home, path[2:])
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}

// CommandPath joins a configured command onto the command root. Absolute
// commands, and every command when root is empty, are returned unchanged
// so they are looked up on PATH.
func CommandPath(root, command string) string {
	if filepath.IsAbs(command) || root == "" {
		return command
	}
	p := filepath.Join(root, command)
	if f := strings.Fields(p); len(f) > 0 && !strings.ContainsRune(f[0], '/') {
		p = "./" + p
	}
	return p
}
