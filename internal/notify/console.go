package notify

import (
	"context"
	"io"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
)

// Formatter renders a batch for people.
type Formatter func(results []evaluate.Result) string

// Console prints batches instead of sending them. Useful for dry runs.
type Console struct {
	w      io.Writer
	format Formatter
}

// NewConsole creates a console transport. A nil format writes the raw
// status lines.
func NewConsole(w io.Writer, format Formatter) *Console {
	return &Console{w: w, format: format}
}

func (c *Console) Name() string { return "stdout" }

func (c *Console) Send(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var out []byte
	if c.format == nil {
		out = batch.Payload()
	} else {
		out = []byte(c.format(batch.Results))
	}
	if _, err := c.w.Write(out); err != nil {
		return errors.WrapWithCode(err, errors.ErrDispatch, "Couldn't write results", "")
	}
	return nil
}
