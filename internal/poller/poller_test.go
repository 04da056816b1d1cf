package poller

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/icinga"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/rileyhilliard/gridmon/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogText = `hostname == OTHER
load_avg > NUMERIC
load_avg_nagtxt == OTHER
mem_free >= MEMORY
mem_free_nagtxt == OTHER
`

const thresholdText = `- hostname: node01
  load_avg: 5
  mem_free: 1G
- hostname: node02
  load_avg: 5
  mem_free: 1G
`

const sensorText = `hostname: global
load_avg: 0
---
hostname: node01
load_avg: 7
mem_free: 512M
---
hostname: node02
load_avg: 3
errors:
  - no value for "mem_free" because execd is in unknown state
---
hostname: node99
load_avg: 80
`

// fakeRunner answers commands from a map and counts calls.
type fakeRunner struct {
	mu     sync.Mutex
	out    map[string]string
	errs   map[string]error
	counts map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		out: map[string]string{
			"catalog":    catalogText,
			"thresholds": thresholdText,
			"sensors":    sensorText,
		},
		errs:   map[string]error{},
		counts: map[string]int{},
	}
}

func (f *fakeRunner) Run(ctx context.Context, command string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[command]++
	if err := f.errs[command]; err != nil {
		return nil, err
	}
	return []byte(f.out[command]), nil
}

func (f *fakeRunner) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[command]
}

// fakeAPI is an in-memory Icinga host list.
type fakeAPI struct {
	mu      sync.Mutex
	hosts   map[string]icinga.HostSpec
	creates int
}

func (a *fakeAPI) ListHosts(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for h := range a.hosts {
		out = append(out, h)
	}
	return out, nil
}

func (a *fakeAPI) CreateHost(ctx context.Context, host string, spec icinga.HostSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	a.hosts[host] = spec
	return nil
}

func (a *fakeAPI) DeleteHost(ctx context.Context, host string) (icinga.DeleteResult, error) {
	return icinga.DeleteNotFound, nil
}

func (a *fakeAPI) DeleteService(ctx context.Context, host, service string) (icinga.DeleteResult, error) {
	return icinga.DeleteNotFound, nil
}

// recordingTransport keeps every batch.
type recordingTransport struct {
	mu      sync.Mutex
	batches []*notify.Batch
	err     error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(ctx context.Context, b *notify.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return r.err
}

func (r *recordingTransport) sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

type fixture struct {
	runner    *fakeRunner
	api       *fakeAPI
	transport *recordingTransport
	log       *logger.BufferLogger
	poller    *Poller
}

func newFixture(t *testing.T, opts Options, extra ...Option) *fixture {
	t.Helper()
	f := &fixture{
		runner:    newFakeRunner(),
		api:       &fakeAPI{hosts: map[string]icinga.HostSpec{"node01": {}}},
		transport: &recordingTransport{},
		log:       logger.NewBufferLogger(),
	}
	if opts.CatalogCommand == "" {
		opts.CatalogCommand = "catalog"
		opts.ThresholdsCommand = "thresholds"
		opts.SensorsCommand = "sensors"
	}
	dir := icinga.NewDirectory(f.api, nil, icinga.DirectoryOptions{
		Templates: []string{"generic-host"},
		Vars:      map[string]string{"sge_node": "1"},
	}, f.log)
	sink := notify.NewSink(f.transport, notify.SinkOptions{}, f.log)
	options := append([]Option{WithIDGenerator(func() string { return "cycle-1" })}, extra...)
	f.poller = New(opts, f.runner, dir, sink, f.log, options...)
	return f
}

var wantResults = []evaluate.Result{
	{Hostname: "node01", Sensor: "load_avg", Status: evaluate.StatusProblem, Detail: "7|load_avg=7"},
	{Hostname: "node01", Sensor: "mem_free", Status: evaluate.StatusOK, Detail: "512MB|mem_free=512MB"},
	{Hostname: "node02", Sensor: "load_avg", Status: evaluate.StatusOK, Detail: "3|load_avg=3"},
	{Hostname: "node02", Sensor: "mem_free", Status: evaluate.StatusProblem, Detail: `no value for "mem_free" because execd is in unknown state`},
}

func TestRunCycle(t *testing.T) {
	f := newFixture(t, Options{})

	report, err := f.poller.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cycle-1", report.CycleID)
	assert.Equal(t, 2, report.Hosts, "global and hosts without thresholds are skipped")
	assert.Equal(t, wantResults, report.Results)
	assert.Equal(t, 2, report.Problems())

	require.NotNil(t, report.Registration)
	assert.Equal(t, []string{"node01"}, report.Registration.Known)
	assert.Equal(t, []string{"node02"}, report.Registration.Created)
	assert.Equal(t, "1", f.api.hosts["node02"].Vars["uses_mem_free"])

	assert.True(t, report.Dispatched)
	require.Equal(t, 1, f.transport.sent())
	assert.Equal(t, "cycle-1", f.transport.batches[0].CycleID)
	assert.Equal(t, wantResults, f.transport.batches[0].Results)
}

func TestRunCycle_SecondCycleDoesNotRecreate(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.poller.RunCycle(ctx)
	require.NoError(t, err)
	report, err := f.poller.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, f.api.creates)
	assert.ElementsMatch(t, []string{"node01", "node02"}, report.Registration.Known)
}

func TestSync_DoesNotDispatch(t *testing.T) {
	f := newFixture(t, Options{})
	report, err := f.poller.Sync(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report.Registration)
	assert.False(t, report.Dispatched)
	assert.Equal(t, 0, f.transport.sent())
}

func TestCheck_EvaluatesOnly(t *testing.T) {
	f := newFixture(t, Options{})
	report, err := f.poller.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantResults, report.Results)
	assert.Nil(t, report.Registration)
	assert.Equal(t, 0, f.api.creates)
	assert.Equal(t, 0, f.transport.sent())
}

func TestRunCycle_SourceUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.errs["sensors"] = errors.New(errors.ErrSource, "sensors exited with status 1", "")

	_, err := f.poller.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSource))
	assert.Equal(t, 0, f.transport.sent())
	assert.Equal(t, 0, f.api.creates)
}

func TestRunCycle_BadThresholds(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.out["thresholds"] = "- load_avg: 5\n"

	_, err := f.poller.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrParse))
}

func TestRunCycle_PartialSensorStream(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.out["sensors"] = "hostname: node01\nload_avg: 7\n---\nhostname: [node02\n"

	report, err := f.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Hosts)
	assert.True(t, f.log.HasLevel("warn"))
}

func TestRunCycle_DispatchFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.transport.err = stderrors.New("send_nsca: connection refused")

	report, err := f.poller.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDispatch))
	assert.False(t, report.Dispatched)
	assert.Equal(t, []string{"node02"}, report.Registration.Created, "registration still happened")
}

func TestRunCycle_ThresholdCache(t *testing.T) {
	f := newFixture(t, Options{ThresholdCacheTTL: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.poller.RunCycle(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.runner.count("thresholds"))
	assert.Equal(t, 3, f.runner.count("sensors"))

	f.poller.InvalidateThresholds()
	_, err := f.poller.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.runner.count("thresholds"))
}

func TestRunCycle_NoCacheRefetches(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.poller.RunCycle(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.runner.count("thresholds"))
}

// slowRunner blocks until its context is done.
type slowRunner struct{}

func (slowRunner) Run(ctx context.Context, command string) ([]byte, error) {
	<-ctx.Done()
	return nil, errors.WrapWithCode(ctx.Err(), errors.ErrSource, command+" didn't finish in time", "")
}

func TestRunCycle_SourceTimeout(t *testing.T) {
	p := New(Options{SourceTimeout: 50 * time.Millisecond, CatalogCommand: "catalog"},
		slowRunner{}, nil, nil, logger.Noop())

	start := time.Now()
	_, err := p.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSource))
	assert.Less(t, time.Since(start), 2*time.Second)
}

type authFunc func(ctx context.Context) error

func (a authFunc) CheckAuth(ctx context.Context) error { return a(ctx) }

func TestRun_LoopsUntilCancelled(t *testing.T) {
	authChecked := false
	f := newFixture(t, Options{Interval: 10 * time.Millisecond},
		WithAuthCheck(authFunc(func(ctx context.Context) error {
			authChecked = true
			return stderrors.New("401")
		})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()

	require.Eventually(t, func() bool { return f.transport.sent() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.True(t, authChecked)
	assert.True(t, f.log.Contains("warn", "auth check failed"))
}

func TestRun_FailedCycleKeepsLooping(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond})
	f.runner.errs["catalog"] = errors.New(errors.ErrSource, "catalog unavailable", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.poller.Run(ctx) }()

	require.Eventually(t, func() bool { return f.runner.count("catalog") >= 3 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, f.log.Contains("error", "catalog unavailable"))
}
