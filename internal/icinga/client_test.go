package icinga

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, f *fakeIcinga) *Client {
	t.Helper()
	srv := f.server(t)
	return NewClient(ClientOptions{
		Server:    srv.URL + "/",
		Username:  "gridmon",
		Password:  "secret",
		VerifyTLS: false,
		Timeout:   5 * time.Second,
	}, logger.Noop())
}

func TestClient_CheckAuth(t *testing.T) {
	f := newFakeIcinga()
	c := newTestClient(t, f)
	assert.NoError(t, c.CheckAuth(context.Background()))

	srv := f.server(t)
	bad := NewClient(ClientOptions{Server: srv.URL, Username: "gridmon", Password: "wrong"}, logger.Noop())
	err := bad.CheckAuth(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRegistration))
	assert.True(t, IsRejected(err))
}

func TestClient_VerifyTLSByDefault(t *testing.T) {
	f := newFakeIcinga()
	srv := f.server(t)

	c := NewClient(ClientOptions{
		Server:    srv.URL,
		Username:  "gridmon",
		Password:  "secret",
		VerifyTLS: true,
	}, logger.Noop())

	// httptest's certificate is self-signed, so verification fails before
	// any HTTP exchange happens.
	err := c.CheckAuth(context.Background())
	require.Error(t, err)
	assert.False(t, IsRejected(err))
}

func TestClient_ListHosts(t *testing.T) {
	f := newFakeIcinga("node02", "node01")
	c := newTestClient(t, f)

	hosts, err := c.ListHosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"node01", "node02"}, hosts)
}

func TestClient_ListHosts_NotJSON(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>login</html>")
	}))
	t.Cleanup(srv.Close)
	c := NewClient(ClientOptions{Server: srv.URL, Username: "gridmon", Password: "secret"}, logger.Noop())

	hosts, err := c.ListHosts(context.Background())
	require.Error(t, err)
	assert.Nil(t, hosts, "an unreadable list is never taken as empty")
	assert.True(t, errors.IsCode(err, errors.ErrRegistration))
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestClient_HostExists(t *testing.T) {
	f := newFakeIcinga("node01")
	c := newTestClient(t, f)

	ok, err := c.HostExists(context.Background(), "node01")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HostExists(context.Background(), "node02")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_CreateHost(t *testing.T) {
	f := newFakeIcinga()
	c := newTestClient(t, f)

	err := c.CreateHost(context.Background(), "node01", HostSpec{
		Templates: []string{"generic-host"},
		Address:   "10.0.0.1",
		Vars:      map[string]string{"sge_node": "1", "uses_load_avg": "1"},
	})
	require.NoError(t, err)

	h, ok := f.host("node01")
	require.True(t, ok)
	assert.Equal(t, []string{"generic-host"}, h.Templates)
	assert.Equal(t, "10.0.0.1", h.Attrs.Address)
	assert.Equal(t, map[string]string{"sge_node": "1", "uses_load_avg": "1"}, h.Attrs.Vars)
}

func TestClient_CreateHost_Exists(t *testing.T) {
	f := newFakeIcinga("node01")
	c := newTestClient(t, f)

	err := c.CreateHost(context.Background(), "node01", HostSpec{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrHostExists))
	assert.Equal(t, 0, f.putCount())
}

func TestClient_CreateHost_Rejected(t *testing.T) {
	f := newFakeIcinga()
	f.failPut = 1
	c := newTestClient(t, f)

	err := c.CreateHost(context.Background(), "node01", HostSpec{})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Contains(t, err.Error(), "template not found")
}

func TestClient_DeleteHost(t *testing.T) {
	f := newFakeIcinga("node01")
	c := newTestClient(t, f)

	res, err := c.DeleteHost(context.Background(), "node01")
	require.NoError(t, err)
	assert.Equal(t, DeleteDeleted, res)
	_, ok := f.host("node01")
	assert.False(t, ok)

	res, err = c.DeleteHost(context.Background(), "node01")
	require.NoError(t, err)
	assert.Equal(t, DeleteNotFound, res)
}

func TestClient_DeleteService(t *testing.T) {
	f := newFakeIcinga("node01")
	f.services["node01!load_avg"] = true
	c := newTestClient(t, f)

	res, err := c.DeleteService(context.Background(), "node01", "load_avg")
	require.NoError(t, err)
	assert.Equal(t, DeleteDeleted, res)

	res, err = c.DeleteService(context.Background(), "node01", "load_avg")
	require.NoError(t, err)
	assert.Equal(t, DeleteNotFound, res)
}

func TestClient_Unreachable(t *testing.T) {
	f := newFakeIcinga()
	srv := f.server(t)
	url := srv.URL
	srv.Close()

	c := NewClient(ClientOptions{Server: url, Username: "gridmon", Password: "secret"}, logger.Noop())
	_, err := c.ListHosts(context.Background())
	require.Error(t, err)
	assert.False(t, IsRejected(err))
	assert.True(t, errors.IsCode(err, errors.ErrRegistration))

	res, err := c.DeleteHost(context.Background(), "node01")
	require.Error(t, err)
	assert.Equal(t, DeleteFailed, res)
}

func TestDeleteResultString(t *testing.T) {
	assert.Equal(t, "deleted", DeleteDeleted.String())
	assert.Equal(t, "not found", DeleteNotFound.String())
	assert.Equal(t, "failed", DeleteFailed.String())
}

func TestAPIError_TruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	e := &APIError{Method: "PUT", Path: "/v1/objects/hosts/{name}", StatusCode: 500, Body: string(long)}
	assert.Less(t, len(e.Error()), 300)
	assert.Equal(t, "GET /v1: HTTP 401", (&APIError{Method: "GET", Path: "/v1", StatusCode: 401}).Error())
}
