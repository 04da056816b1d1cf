package icinga

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeIcinga is an in-memory Icinga 2 API.
type fakeIcinga struct {
	mu       sync.Mutex
	hosts    map[string]hostObject
	services map[string]bool
	puts     int
	failPut  int
	requests []string
}

func newFakeIcinga(hosts ...string) *fakeIcinga {
	f := &fakeIcinga{hosts: map[string]hostObject{}, services: map[string]bool{}}
	for _, h := range hosts {
		f.hosts[h] = hostObject{}
	}
	return f
}

func (f *fakeIcinga) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeIcinga) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	user, pass, ok := r.BasicAuth()
	if !ok || user != "gridmon" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case path == "/v1":
		_, _ = io.WriteString(w, `{"results":[]}`)

	case path == "/v1/objects/hosts" && r.Method == http.MethodGet:
		names := make([]string, 0, len(f.hosts))
		for h := range f.hosts {
			names = append(names, h)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString(`{"results":[`)
		for i, n := range names {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"name":"` + n + `","type":"Host"}`)
		}
		b.WriteString(`]}`)
		_, _ = io.WriteString(w, b.String())

	case strings.HasPrefix(path, "/v1/objects/hosts/"):
		name := strings.TrimPrefix(path, "/v1/objects/hosts/")
		f.handleHost(w, r, name)

	case strings.HasPrefix(path, "/v1/objects/services/"):
		name := strings.TrimPrefix(path, "/v1/objects/services/")
		switch {
		case !f.services[name]:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete:
			delete(f.services, name)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeIcinga) handleHost(w http.ResponseWriter, r *http.Request, name string) {
	_, exists := f.hosts[name]
	switch r.Method {
	case http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"results":[{"name":"`+name+`"}]}`)

	case http.MethodPut:
		f.puts++
		if f.failPut > 0 {
			f.failPut--
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":500,"status":"template not found"}`)
			return
		}
		if exists {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var obj hostObject
		if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.hosts[name] = obj

	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("cascade") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		delete(f.hosts, name)
	}
}

func (f *fakeIcinga) host(name string) (hostObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[name]
	return h, ok
}

func (f *fakeIcinga) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// fakeResolver maps names to addresses; unknown names fail.
type fakeResolver map[string]string

func (r fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if addr, ok := r[host]; ok {
		return []string{addr}, nil
	}
	return nil, &net404{host}
}

type net404 struct{ host string }

func (e *net404) Error() string { return "lookup " + e.host + ": no such host" }
