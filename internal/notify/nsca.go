package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// NSCA pipes batches into send_nsca.
type NSCA struct {
	Command  string
	DestHost string
	Config   string
	log      logger.Logger
}

// NewNSCA creates a transport running command <destHost> -c <config>.
func NewNSCA(command, destHost, config string, log logger.Logger) *NSCA {
	return &NSCA{Command: command, DestHost: destHost, Config: config, log: log}
}

func (n *NSCA) Name() string { return "nsca" }

func (n *NSCA) args() []string {
	args := []string{n.DestHost}
	if n.Config != "" {
		args = append(args, "-c", n.Config)
	}
	return args
}

// Send writes the batch payload to send_nsca's stdin and logs what it
// prints back.
func (n *NSCA) Send(ctx context.Context, batch *Batch) error {
	cmd := exec.CommandContext(ctx, n.Command, n.args()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(batch.Payload())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if out := strings.TrimSpace(stdout.String()); out != "" {
		n.log.Info("send_nsca: %s", out)
	}
	if out := strings.TrimSpace(stderr.String()); out != "" {
		n.log.Warn("send_nsca stderr: %s", out)
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return errors.WrapWithCode(exitErr, errors.ErrDispatch,
				fmt.Sprintf("send_nsca exited with status %d", exitErr.ExitCode()),
				"Check notify.nsca_dest_host and the send_nsca config file.")
		}
		return errors.WrapWithCode(runErr, errors.ErrDispatch,
			"Couldn't run "+n.Command,
			"Make sure notify.nsca_command exists and is executable.")
	}
	return nil
}
