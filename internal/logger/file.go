package logger

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/client9/reopen"
	"github.com/rileyhilliard/gridmon/internal/errors"
)

// Output is where the daemon log goes. Close stops the reopen handler.
type Output struct {
	io.Writer
	file *reopen.FileWriter
	sig  chan os.Signal
	done chan struct{}
}

// OpenOutput returns stderr for an empty path or "-", otherwise a log file
// that is reopened on SIGUSR2 so logrotate can move it away.
func OpenOutput(path string) (*Output, error) {
	if path == "" || path == "-" {
		return &Output{Writer: os.Stderr}, nil
	}

	fh, err := reopen.NewFileWriter(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't open log file "+path,
			"Check log_file in the config and the directory permissions.")
	}

	out := &Output{
		Writer: fh,
		file:   fh,
		sig:    make(chan os.Signal, 1),
		done:   make(chan struct{}),
	}
	signal.Notify(out.sig, syscall.SIGUSR2)
	go out.reopenLoop()
	return out, nil
}

func (o *Output) reopenLoop() {
	for {
		select {
		case <-o.sig:
			_ = o.file.Reopen()
		case <-o.done:
			return
		}
	}
}

// Close releases the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	signal.Stop(o.sig)
	close(o.done)
	return o.file.Close()
}
