// Package source runs the scripts that produce a cycle's catalog,
// threshold and sensor text, either locally or on a scheduler head node
// over SSH.
package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// Runner runs one source command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

// Local runs commands through the shell in Dir.
type Local struct {
	Dir string
	log logger.Logger
}

// NewLocal creates a runner that executes commands in dir.
func NewLocal(dir string, log logger.Logger) *Local {
	return &Local{Dir: dir, log: log}
}

func shell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Run executes command with the shell so pipes and redirects work.
func (l *Local) Run(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, shell(), "-c", command)
	cmd.WaitDelay = 2 * time.Second
	if l.Dir != "" {
		cmd.Dir = l.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	logStderr(l.log, command, stderr.Bytes())
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrSource,
				fmt.Sprintf("%s didn't finish in time", command),
				"Raise source.timeout or check why the command hangs.")
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, exitFailure(command, exitErr.ExitCode(), stderr.Bytes())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSource,
			"Couldn't run "+command,
			"Make sure the command exists under command_root and is executable.")
	}
	return stdout.Bytes(), nil
}

func logStderr(log logger.Logger, command string, stderr []byte) {
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		log.Debug("%s stderr: %s", command, msg)
	}
}

func exitFailure(command string, code int, stderr []byte) error {
	msg := fmt.Sprintf("%s exited with status %d", command, code)
	if tail := lastLine(stderr); tail != "" {
		msg += ": " + tail
	}
	return errors.New(errors.ErrSource, msg,
		"Run the command by hand to see what it prints.")
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
