package icinga

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// UnknownAddress is registered for hosts whose name does not resolve.
const UnknownAddress = "none"

// ErrCreatePending is returned when a host was already sent a create in
// the current pass and the host list has not been refreshed since.
var ErrCreatePending = stderrors.New("create already attempted in this pass")

// API is the part of the Icinga API the directory needs. *Client
// implements it.
type API interface {
	ListHosts(ctx context.Context) ([]string, error)
	CreateHost(ctx context.Context, host string, spec HostSpec) error
	DeleteHost(ctx context.Context, host string) (DeleteResult, error)
	DeleteService(ctx context.Context, host, service string) (DeleteResult, error)
}

// Resolver looks up a host's addresses. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DirectoryOptions sets what every created host gets.
type DirectoryOptions struct {
	Templates []string
	Vars      map[string]string

	// Timeout bounds each API call and address lookup. Zero leaves only
	// the caller's context.
	Timeout time.Duration
}

// EnsureReport summarises one EnsureHostsExist pass.
type EnsureReport struct {
	Known   []string
	Created []string
	Pending []string
	Failed  map[string]error
}

// Directory mirrors the set of hosts Icinga knows about. The cached set is
// trusted only until something gridmon did may have changed the remote
// side; after that the next read refreshes it first.
type Directory struct {
	mu       sync.Mutex
	api      API
	resolver Resolver
	opts     DirectoryOptions
	log      logger.Logger

	hosts     map[string]bool
	dirty     bool
	attempted map[string]bool
}

// NewDirectory creates a directory. Nothing is fetched until the first read.
func NewDirectory(api API, resolver Resolver, opts DirectoryOptions, log logger.Logger) *Directory {
	return &Directory{
		api:       api,
		resolver:  resolver,
		opts:      opts,
		log:       log,
		hosts:     map[string]bool{},
		dirty:     true,
		attempted: map[string]bool{},
	}
}

func (d *Directory) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.Timeout > 0 {
		return context.WithTimeout(ctx, d.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// Dirty reports whether the next read will refresh.
func (d *Directory) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Refresh reloads the host list. On failure the directory stays dirty.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refresh(ctx)
}

func (d *Directory) refresh(ctx context.Context) error {
	cctx, cancel := d.callContext(ctx)
	defer cancel()

	names, err := d.api.ListHosts(cctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistration,
			"Couldn't refresh the Icinga host list",
			"Check the Icinga API is up; the next cycle will try again.")
	}

	hosts := make(map[string]bool, len(names))
	for _, n := range names {
		hosts[n] = true
	}
	d.hosts = hosts
	d.dirty = false
	d.attempted = map[string]bool{}
	d.log.Debug("icinga host list refreshed: %d hosts", len(hosts))
	return nil
}

func (d *Directory) ensureFresh(ctx context.Context) error {
	if !d.dirty {
		return nil
	}
	return d.refresh(ctx)
}

// HasHost reports whether Icinga knows name, refreshing first when the
// cached set may be stale.
func (d *Directory) HasHost(ctx context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureFresh(ctx); err != nil {
		return false, err
	}
	return d.hosts[name], nil
}

// Hostnames returns the known hosts, sorted.
func (d *Directory) Hostnames(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureFresh(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(d.hosts))
	for h := range d.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

// AddHost creates name with one uses_<service> var per service. A host
// that does not resolve is registered with UnknownAddress.
func (d *Directory) AddHost(ctx context.Context, name string, services []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addHost(ctx, name, services)
}

func (d *Directory) addHost(ctx context.Context, name string, services []string) error {
	if d.attempted[name] {
		return fmt.Errorf("%w: %s", ErrCreatePending, name)
	}
	d.attempted[name] = true

	spec := HostSpec{
		Templates: d.opts.Templates,
		Address:   d.resolve(ctx, name),
		Vars:      hostVars(d.opts.Vars, services),
	}

	cctx, cancel := d.callContext(ctx)
	defer cancel()
	err := d.api.CreateHost(cctx, name, spec)

	switch {
	case err == nil:
		d.dirty = true
		return nil
	case stderrors.Is(err, ErrHostExists):
		// The cache missed a host Icinga has.
		d.dirty = true
	case IsRejected(err):
		// Icinga refused; nothing changed remotely.
	default:
		// Outcome unknown, so the cache can't be trusted.
		d.dirty = true
	}
	return errors.WrapWithCode(err, errors.ErrRegistration,
		"Couldn't create Icinga host "+name, "")
}

func hostVars(static map[string]string, services []string) map[string]string {
	vars := make(map[string]string, len(static)+len(services))
	for k, v := range static {
		vars[k] = v
	}
	for _, svc := range services {
		vars["uses_"+svc] = "1"
	}
	return vars
}

func (d *Directory) resolve(ctx context.Context, name string) string {
	if d.resolver == nil {
		return UnknownAddress
	}
	cctx, cancel := d.callContext(ctx)
	defer cancel()

	addrs, err := d.resolver.LookupHost(cctx, name)
	if err != nil || len(addrs) == 0 {
		d.log.Warn("can't resolve %s, registering it with address %q", name, UnknownAddress)
		return UnknownAddress
	}
	return addrs[0]
}

// RemoveHost deletes name and its services from Icinga.
func (d *Directory) RemoveHost(ctx context.Context, name string) (DeleteResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cctx, cancel := d.callContext(ctx)
	defer cancel()

	res, err := d.api.DeleteHost(cctx, name)
	d.dirty = true
	if err != nil {
		return res, errors.WrapWithCode(err, errors.ErrRegistration,
			"Couldn't remove Icinga host "+name, "")
	}
	return res, nil
}

// RemoveService deletes one service from host. The host list is unaffected.
func (d *Directory) RemoveService(ctx context.Context, host, service string) (DeleteResult, error) {
	cctx, cancel := d.callContext(ctx)
	defer cancel()

	res, err := d.api.DeleteService(cctx, host, service)
	if err != nil {
		return res, errors.WrapWithCode(err, errors.ErrRegistration,
			fmt.Sprintf("Couldn't remove service %s from %s", service, host), "")
	}
	return res, nil
}

// EnsureHostsExist creates every indexed host Icinga does not know yet.
// A failure for one host is logged and recorded; the rest still run, and
// the next pass tries the failed hosts again. If the host list can't be
// loaded at all, every host is reported failed.
func (d *Directory) EnsureHostsExist(ctx context.Context, idx *evaluate.ServiceIndex) EnsureReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Creates refused in an earlier pass are retried.
	d.attempted = map[string]bool{}

	report := EnsureReport{Failed: map[string]error{}}
	var listErr error
	for _, host := range idx.Hosts() {
		if listErr == nil {
			listErr = ctx.Err()
		}
		if listErr == nil {
			if listErr = d.ensureFresh(ctx); listErr != nil {
				d.log.Error("%s", errors.Brief(listErr))
			}
		}
		if listErr != nil {
			report.Failed[host] = listErr
			continue
		}
		if d.hosts[host] {
			report.Known = append(report.Known, host)
			continue
		}

		d.log.Warn("icinga host %s not found, creating it", host)
		err := d.addHost(ctx, host, idx.Services(host))
		switch {
		case err == nil:
			d.log.Info("icinga host %s created", host)
			report.Created = append(report.Created, host)
		case stderrors.Is(err, ErrCreatePending):
			d.log.Warn("icinga host %s: %v", host, err)
			report.Pending = append(report.Pending, host)
		default:
			d.log.Error("%s", errors.Brief(err))
			report.Failed[host] = err
		}
	}
	return report
}
