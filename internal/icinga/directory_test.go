package icinga

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAPI is an in-memory API that counts calls.
type memAPI struct {
	hosts   map[string]HostSpec
	lists   int
	creates map[string]int

	listErr   error
	createErr map[string]error
}

func newMemAPI(hosts ...string) *memAPI {
	m := &memAPI{hosts: map[string]HostSpec{}, creates: map[string]int{}, createErr: map[string]error{}}
	for _, h := range hosts {
		m.hosts[h] = HostSpec{}
	}
	return m
}

func (m *memAPI) ListHosts(ctx context.Context) ([]string, error) {
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []string
	for h := range m.hosts {
		out = append(out, h)
	}
	return out, nil
}

func (m *memAPI) CreateHost(ctx context.Context, host string, spec HostSpec) error {
	m.creates[host]++
	if err := m.createErr[host]; err != nil {
		return err
	}
	if _, ok := m.hosts[host]; ok {
		return fmt.Errorf("%w: %s", ErrHostExists, host)
	}
	m.hosts[host] = spec
	return nil
}

func (m *memAPI) DeleteHost(ctx context.Context, host string) (DeleteResult, error) {
	if _, ok := m.hosts[host]; !ok {
		return DeleteNotFound, nil
	}
	delete(m.hosts, host)
	return DeleteDeleted, nil
}

func (m *memAPI) DeleteService(ctx context.Context, host, service string) (DeleteResult, error) {
	return DeleteNotFound, nil
}

func index(pairs ...string) *evaluate.ServiceIndex {
	var results []evaluate.Result
	for i := 0; i+1 < len(pairs); i += 2 {
		results = append(results, evaluate.Result{Hostname: pairs[i], Sensor: pairs[i+1]})
	}
	return evaluate.IndexServices(results)
}

func testOptions() DirectoryOptions {
	return DirectoryOptions{
		Templates: []string{"generic-host"},
		Vars:      map[string]string{"sge_node": "1"},
		Timeout:   time.Second,
	}
}

func TestDirectory_LazyRefresh(t *testing.T) {
	api := newMemAPI("node01")
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())

	assert.True(t, d.Dirty())
	assert.Equal(t, 0, api.lists)

	ok, err := d.HasHost(context.Background(), "node01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, d.Dirty())

	ok, err = d.HasHost(context.Background(), "node02")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, api.lists, "clean cache is not refreshed")
}

func TestDirectory_AddHost(t *testing.T) {
	api := newMemAPI()
	d := NewDirectory(api, fakeResolver{"node01": "10.0.0.1"}, testOptions(), logger.Noop())
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx))
	require.NoError(t, d.AddHost(ctx, "node01", []string{"load_avg", "mem_free"}))

	assert.Equal(t, HostSpec{
		Templates: []string{"generic-host"},
		Address:   "10.0.0.1",
		Vars:      map[string]string{"sge_node": "1", "uses_load_avg": "1", "uses_mem_free": "1"},
	}, api.hosts["node01"])

	assert.True(t, d.Dirty())
	ok, err := d.HasHost(ctx, "node01")
	require.NoError(t, err)
	assert.True(t, ok, "dirty cache refreshes and sees the new host")
	assert.Equal(t, 2, api.lists)
}

func TestDirectory_AddHost_UnresolvableAddress(t *testing.T) {
	api := newMemAPI()
	log := logger.NewBufferLogger()
	d := NewDirectory(api, fakeResolver{}, testOptions(), log)

	require.NoError(t, d.AddHost(context.Background(), "ghost01", nil))
	assert.Equal(t, UnknownAddress, api.hosts["ghost01"].Address)
	assert.True(t, log.Contains("warn", "ghost01"))
}

func TestDirectory_AddHost_NilResolver(t *testing.T) {
	api := newMemAPI()
	d := NewDirectory(api, nil, testOptions(), logger.Noop())

	require.NoError(t, d.AddHost(context.Background(), "node01", nil))
	assert.Equal(t, UnknownAddress, api.hosts["node01"].Address)
}

func TestDirectory_AddHost_ExistingHostIsReported(t *testing.T) {
	api := newMemAPI("node01")
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())

	err := d.AddHost(context.Background(), "node01", nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrHostExists))
	assert.True(t, d.Dirty())
}

func TestDirectory_EnsureHostsExist(t *testing.T) {
	api := newMemAPI("node01")
	d := NewDirectory(api, fakeResolver{"node02": "10.0.0.2"}, testOptions(), logger.Noop())
	ctx := context.Background()

	report := d.EnsureHostsExist(ctx, index("node01", "load_avg", "node02", "load_avg", "node02", "mem_free"))

	assert.Equal(t, []string{"node01"}, report.Known)
	assert.Equal(t, []string{"node02"}, report.Created)
	assert.Empty(t, report.Failed)
	assert.Equal(t, map[string]string{"sge_node": "1", "uses_load_avg": "1", "uses_mem_free": "1"}, api.hosts["node02"].Vars)

	ok, err := d.HasHost(ctx, "node02")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirectory_EnsureHostsExist_Idempotent(t *testing.T) {
	api := newMemAPI()
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())
	ctx := context.Background()
	idx := index("node01", "load_avg")

	d.EnsureHostsExist(ctx, idx)
	report := d.EnsureHostsExist(ctx, idx)

	assert.Equal(t, 1, api.creates["node01"])
	assert.Equal(t, []string{"node01"}, report.Known)
}

func TestDirectory_RejectedCreateRetriedNextPass(t *testing.T) {
	api := newMemAPI()
	api.createErr["node01"] = &APIError{Method: "PUT", Path: "/v1/objects/hosts/node01", StatusCode: 503}
	log := logger.NewBufferLogger()
	d := NewDirectory(api, fakeResolver{}, testOptions(), log)
	ctx := context.Background()
	idx := index("node01", "load_avg")

	first := d.EnsureHostsExist(ctx, idx)
	require.Contains(t, first.Failed, "node01")
	assert.False(t, d.Dirty(), "a rejected create leaves the cache valid")
	assert.True(t, log.Contains("error", "node01"))

	// No second create until the pass is over.
	err := d.AddHost(ctx, "node01", nil)
	assert.True(t, stderrors.Is(err, ErrCreatePending))
	assert.Equal(t, 1, api.creates["node01"])

	// The API recovers; the next cycle creates the host.
	delete(api.createErr, "node01")
	second := d.EnsureHostsExist(ctx, idx)
	assert.Equal(t, []string{"node01"}, second.Created)
	assert.Empty(t, second.Pending)
	assert.Empty(t, second.Failed)
	assert.Equal(t, 2, api.creates["node01"])
	assert.Equal(t, 1, api.lists, "no refresh needed to retry")

	third := d.EnsureHostsExist(ctx, idx)
	assert.Equal(t, []string{"node01"}, third.Known)
	assert.Equal(t, 2, api.creates["node01"])
}

func TestDirectory_RejectedCreateRetriedEveryPass(t *testing.T) {
	api := newMemAPI()
	api.createErr["node01"] = &APIError{Method: "PUT", StatusCode: 500}
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())
	idx := index("node01", "load_avg")

	for i := 0; i < 3; i++ {
		report := d.EnsureHostsExist(context.Background(), idx)
		assert.Contains(t, report.Failed, "node01")
		assert.Empty(t, report.Pending)
	}
	assert.Equal(t, 3, api.creates["node01"])
}

func TestDirectory_TransportFailureMarksDirty(t *testing.T) {
	api := newMemAPI()
	api.createErr["node01"] = stderrors.New("connection reset by peer")
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())

	err := d.AddHost(context.Background(), "node01", nil)
	require.Error(t, err)
	assert.False(t, IsRejected(err))
	assert.True(t, d.Dirty())
}

func TestDirectory_PartialFailure(t *testing.T) {
	api := newMemAPI()
	api.createErr["node02"] = &APIError{Method: "PUT", StatusCode: 400}
	log := logger.NewBufferLogger()
	d := NewDirectory(api, fakeResolver{}, testOptions(), log)

	report := d.EnsureHostsExist(context.Background(), index("node01", "a", "node02", "a", "node03", "a"))

	assert.Equal(t, []string{"node01", "node03"}, report.Created)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed, "node02")
	assert.True(t, log.Contains("error", "node02"))
}

func TestDirectory_ListFailureFailsEverything(t *testing.T) {
	api := newMemAPI()
	api.listErr = stderrors.New("503")
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())

	report := d.EnsureHostsExist(context.Background(), index("node01", "a", "node02", "a"))

	assert.Len(t, report.Failed, 2)
	assert.Equal(t, 1, api.lists, "list is not retried per host")
	assert.Empty(t, api.creates)
	assert.True(t, d.Dirty())

	_, err := d.Hostnames(context.Background())
	assert.Error(t, err)
}

func TestDirectory_CancelledContext(t *testing.T) {
	api := newMemAPI()
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := d.EnsureHostsExist(ctx, index("node01", "a"))
	assert.Contains(t, report.Failed, "node01")
	assert.Equal(t, 0, api.lists)
}

func TestDirectory_RemoveHost(t *testing.T) {
	api := newMemAPI("node01", "node02")
	d := NewDirectory(api, fakeResolver{}, testOptions(), logger.Noop())
	ctx := context.Background()

	hosts, err := d.Hostnames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node01", "node02"}, hosts)

	res, err := d.RemoveHost(ctx, "node01")
	require.NoError(t, err)
	assert.Equal(t, DeleteDeleted, res)
	assert.True(t, d.Dirty())

	hosts, err = d.Hostnames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node02"}, hosts)

	res, err = d.RemoveHost(ctx, "node01")
	require.NoError(t, err)
	assert.Equal(t, DeleteNotFound, res)
}

func TestDirectory_WithClient(t *testing.T) {
	f := newFakeIcinga("node01")
	c := newTestClient(t, f)
	d := NewDirectory(c, fakeResolver{"node02": "10.0.0.2"}, testOptions(), logger.Noop())
	ctx := context.Background()

	report := d.EnsureHostsExist(ctx, index("node01", "load_avg", "node02", "load_avg"))
	assert.Equal(t, []string{"node02"}, report.Created)
	assert.Empty(t, report.Failed)

	h, ok := f.host("node02")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", h.Attrs.Address)
	assert.Equal(t, "1", h.Attrs.Vars["uses_load_avg"])

	hosts, err := d.Hostnames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node01", "node02"}, hosts)

	report = d.EnsureHostsExist(ctx, index("node01", "load_avg", "node02", "load_avg"))
	assert.Empty(t, report.Created)
	assert.Equal(t, 1, f.putCount())
}
