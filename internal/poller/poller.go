// Package poller runs the gridmon poll cycle: fetch the catalog, thresholds
// and sensor readings, evaluate them, make sure Icinga knows every host and
// hand the results to the notification sink.
package poller

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/icinga"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/rileyhilliard/gridmon/internal/metrics"
	"github.com/rileyhilliard/gridmon/internal/notify"
	"github.com/rileyhilliard/gridmon/internal/sensor"
	"github.com/rileyhilliard/gridmon/internal/snapshot"
	"github.com/rileyhilliard/gridmon/internal/source"
	"github.com/rileyhilliard/gridmon/internal/threshold"
)

// Options configures a Poller.
type Options struct {
	Interval          time.Duration
	SourceTimeout     time.Duration
	ThresholdCacheTTL time.Duration

	CatalogCommand    string
	ThresholdsCommand string
	SensorsCommand    string
}

// AuthChecker verifies monitoring API credentials. *icinga.Client
// implements it.
type AuthChecker interface {
	CheckAuth(ctx context.Context) error
}

// Option is a functional option for a Poller.
type Option func(*Poller)

// WithAuthCheck makes Run check credentials once before the first cycle.
func WithAuthCheck(a AuthChecker) Option {
	return func(p *Poller) { p.auth = a }
}

// WithIDGenerator replaces the cycle ID generator.
func WithIDGenerator(f func() string) Option {
	return func(p *Poller) { p.newID = f }
}

// Poller owns everything a cycle needs. It is not safe for concurrent
// cycles; Run never overlaps them.
type Poller struct {
	opts       Options
	runner     source.Runner
	thresholds *threshold.Cache
	directory  *icinga.Directory
	sink       *notify.Sink
	auth       AuthChecker
	newID      func() string
	log        logger.Logger
}

// New creates a poller. directory and sink may be nil for modes that
// neither register nor dispatch.
func New(opts Options, runner source.Runner, directory *icinga.Directory, sink *notify.Sink, log logger.Logger, options ...Option) *Poller {
	p := &Poller{
		opts:      opts,
		runner:    runner,
		directory: directory,
		sink:      sink,
		newID:     uuid.NewString,
		log:       log,
	}
	p.thresholds = threshold.NewCache(opts.ThresholdCacheTTL, p.loadThresholds)
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Report describes one cycle.
type Report struct {
	CycleID      string
	Hosts        int
	Results      []evaluate.Result
	Registration *icinga.EnsureReport
	Dispatched   bool
	Duration     time.Duration
}

// Problems counts results with a problem status.
func (r *Report) Problems() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == evaluate.StatusProblem {
			n++
		}
	}
	return n
}

type stage int

const (
	stageEvaluate stage = iota
	stageRegister
	stageDispatch
)

// RunCycle runs the whole pipeline once. Host registration failures are
// in the report; a failed fetch or dispatch is returned.
func (p *Poller) RunCycle(ctx context.Context) (*Report, error) {
	return p.cycle(ctx, stageDispatch)
}

// Sync fetches, evaluates and registers hosts without dispatching.
func (p *Poller) Sync(ctx context.Context) (*Report, error) {
	return p.cycle(ctx, stageRegister)
}

// Check fetches and evaluates only.
func (p *Poller) Check(ctx context.Context) (*Report, error) {
	return p.cycle(ctx, stageEvaluate)
}

func (p *Poller) cycle(ctx context.Context, last stage) (*Report, error) {
	start := time.Now()
	report := &Report{CycleID: p.newID()}
	log := logger.WithField(p.log, "cycle", report.CycleID)
	ctx = notify.WithCycleID(ctx, report.CycleID)

	err := p.runStages(ctx, log, last, report)
	report.Duration = time.Since(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	log.Info("cycle done in %s: %d hosts, %d results, %d problems",
		report.Duration.Round(time.Millisecond), report.Hosts, len(report.Results), report.Problems())
	return report, nil
}

func (p *Poller) runStages(ctx context.Context, log logger.Logger, last stage, report *Report) error {
	results, hosts, err := p.evaluate(ctx, log)
	if err != nil {
		return err
	}
	report.Hosts = hosts
	report.Results = results
	for _, r := range results {
		metrics.ResultsTotal.WithLabelValues(r.Status.String()).Inc()
	}

	if last >= stageRegister && p.directory != nil {
		reg := p.directory.EnsureHostsExist(ctx, evaluate.IndexServices(results))
		report.Registration = &reg
		metrics.HostsCreated.Add(float64(len(reg.Created)))
		metrics.RegistrationFailures.Add(float64(len(reg.Failed)))
		if len(reg.Created) > 0 || len(reg.Failed) > 0 {
			log.Info("icinga: %d hosts created, %d failed", len(reg.Created), len(reg.Failed))
		}
	}

	if last >= stageDispatch && p.sink != nil {
		name := p.sink.Transport().Name()
		if err := p.sink.Dispatch(ctx, results); err != nil {
			metrics.DispatchTotal.WithLabelValues(name, "failed").Inc()
			log.Error("%s", errors.Brief(err))
			return err
		}
		metrics.DispatchTotal.WithLabelValues(name, "ok").Inc()
		report.Dispatched = true
	}
	return nil
}

// evaluate fetches the three inputs and turns them into results. It also
// returns how many host snapshots were evaluated.
func (p *Poller) evaluate(ctx context.Context, log logger.Logger) ([]evaluate.Result, int, error) {
	out, err := p.fetch(ctx, "catalog", p.opts.CatalogCommand)
	if err != nil {
		return nil, 0, err
	}
	catalog, err := sensor.ParseCatalog(bytes.NewReader(out), log)
	if err != nil {
		return nil, 0, err
	}

	table, cached, err := p.thresholds.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	if cached {
		metrics.ThresholdCacheHits.Inc()
		log.Debug("using cached thresholds for %d hosts", len(table))
	}

	out, err = p.fetch(ctx, "sensors", p.opts.SensorsCommand)
	if err != nil {
		return nil, 0, err
	}
	snaps, err := snapshot.NewParser(log).Decode(bytes.NewReader(out), table.Has)
	if err != nil {
		// What decoded before the bad document is still usable.
		log.Warn("%s; evaluating %d hosts read before it", errors.Brief(err), len(snaps))
	}

	results := evaluate.New(catalog, table, log).Evaluate(snaps)
	return results, len(snaps), nil
}

func (p *Poller) loadThresholds(ctx context.Context) (threshold.Table, error) {
	out, err := p.fetch(ctx, "thresholds", p.opts.ThresholdsCommand)
	if err != nil {
		return nil, err
	}
	return threshold.Parse(bytes.NewReader(out))
}

func (p *Poller) fetch(ctx context.Context, what, command string) ([]byte, error) {
	if p.opts.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SourceTimeout)
		defer cancel()
	}
	out, err := p.runner.Run(ctx, command)
	if err != nil {
		metrics.SourceFailures.WithLabelValues(what).Inc()
		return nil, err
	}
	return out, nil
}

// InvalidateThresholds drops cached thresholds so the next cycle refetches
// them.
func (p *Poller) InvalidateThresholds() {
	p.thresholds.Invalidate()
}

// Run repeats RunCycle every Interval until ctx is cancelled. A failed
// cycle is logged and the loop carries on.
func (p *Poller) Run(ctx context.Context) error {
	if p.auth != nil {
		if err := p.auth.CheckAuth(ctx); err != nil {
			p.log.Warn("icinga auth check failed: %s", errors.Brief(err))
		} else {
			p.log.Info("icinga auth check passed")
		}
	}

	p.log.Info("polling every %s", p.opts.Interval)
	for {
		if _, err := p.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("cycle failed: %s", errors.Brief(err))
		}

		timer := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("stopping")
			return nil
		case <-timer.C:
		}
	}
}
