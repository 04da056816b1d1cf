// Package notify delivers passive-check results to whatever receives them:
// send_nsca, a Kafka topic or the terminal.
package notify

import (
	"context"
	"os"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

type cycleKey struct{}

// WithCycleID tags ctx with the poll cycle a dispatch belongs to.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleFromContext returns the cycle ID set by WithCycleID, or "".
func CycleFromContext(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// Batch is everything one cycle sends. It is handed to a transport once.
type Batch struct {
	CycleID string
	Results []evaluate.Result
}

// Payload is the batch in line form.
func (b *Batch) Payload() []byte {
	return EncodeLines(b.Results)
}

// Transport sends a batch somewhere.
type Transport interface {
	Name() string
	Send(ctx context.Context, batch *Batch) error
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	// MirrorFile, when set, receives a copy of every payload before it is
	// sent.
	MirrorFile string

	// Timeout bounds one Flush. Zero leaves only the caller's context.
	Timeout time.Duration
}

// Sink buffers results and flushes them through a transport.
type Sink struct {
	transport Transport
	opts      SinkOptions
	log       logger.Logger
	buf       []evaluate.Result
}

// NewSink creates a sink for transport.
func NewSink(transport Transport, opts SinkOptions, log logger.Logger) *Sink {
	return &Sink{transport: transport, opts: opts, log: log}
}

// Transport returns the transport the sink flushes to.
func (s *Sink) Transport() Transport {
	return s.transport
}

// Add buffers results for the next flush.
func (s *Sink) Add(results ...evaluate.Result) {
	s.buf = append(s.buf, results...)
}

// Len is the number of buffered results.
func (s *Sink) Len() int {
	return len(s.buf)
}

// Flush sends the buffer as one batch. The buffer is emptied whether or
// not the send worked; a failure is returned and not retried.
func (s *Sink) Flush(ctx context.Context) error {
	batch := &Batch{CycleID: CycleFromContext(ctx), Results: s.buf}
	s.buf = nil
	if len(batch.Results) == 0 {
		s.log.Debug("nothing to send")
		return nil
	}

	if s.opts.MirrorFile != "" {
		if err := os.WriteFile(s.opts.MirrorFile, batch.Payload(), 0o644); err != nil { //nolint:gosec // diagnostic copy, not secret
			s.log.Warn("couldn't write mirror file %s: %v", s.opts.MirrorFile, err)
		}
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if err := s.transport.Send(ctx, batch); err != nil {
		if errors.IsCode(err, errors.ErrDispatch) {
			return err
		}
		return errors.WrapWithCode(err, errors.ErrDispatch,
			"Couldn't send results via "+s.transport.Name(), "")
	}
	s.log.Info("sent %d results via %s", len(batch.Results), s.transport.Name())
	return nil
}

// Dispatch buffers results and flushes them.
func (s *Sink) Dispatch(ctx context.Context, results []evaluate.Result) error {
	s.Add(results...)
	return s.Flush(ctx)
}
