// Package icinga keeps the Icinga 2 host directory in step with the hosts
// gridmon reports on.
package icinga

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// ErrHostExists is returned when asked to create a host the directory
// already has. It means the caller's view of the directory was stale.
var ErrHostExists = stderrors.New("host already exists in icinga")

// DeleteResult is the outcome of a host or service removal.
type DeleteResult int

const (
	DeleteFailed DeleteResult = iota
	DeleteNotFound
	DeleteDeleted
)

func (r DeleteResult) String() string {
	switch r {
	case DeleteNotFound:
		return "not found"
	case DeleteDeleted:
		return "deleted"
	}
	return "failed"
}

// APIError is a request the API answered with an unexpected status. The
// request reached Icinga, so its outcome is known.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// IsRejected reports whether err is a request Icinga received and refused,
// as opposed to one whose outcome is unknown.
func IsRejected(err error) bool {
	var apiErr *APIError
	return stderrors.As(err, &apiErr)
}

// HostSpec is the object gridmon creates for a host.
type HostSpec struct {
	Templates []string
	Address   string
	Vars      map[string]string
}

type hostObject struct {
	Templates []string  `json:"templates"`
	Attrs     hostAttrs `json:"attrs"`
}

type hostAttrs struct {
	Address string            `json:"address"`
	Vars    map[string]string `json:"vars"`
}

type objectList struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// ClientOptions configures the API connection.
type ClientOptions struct {
	Server    string
	Username  string
	Password  string
	VerifyTLS bool
	Timeout   time.Duration
}

// Client talks to the Icinga 2 REST API.
type Client struct {
	http *resty.Client
	log  logger.Logger
}

// NewClient creates a client for the API at opts.Server, e.g.
// https://icinga.example.com:5665.
func NewClient(opts ClientOptions, log logger.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.Server, "/")).
		SetBasicAuth(opts.Username, opts.Password).
		SetHeader("Accept", "application/json").
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: !opts.VerifyTLS}) //nolint:gosec // opt-out is explicit in config
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	return &Client{http: rc, log: log}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

func transportError(err error, method, path string) error {
	return errors.WrapWithCode(err, errors.ErrRegistration,
		fmt.Sprintf("Icinga request %s %s failed", method, path),
		"Check icinga.server is reachable from this host.")
}

func unexpected(resp *resty.Response, method, path string) error {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}
}

// CheckAuth verifies the credentials against the API root.
func (c *Client) CheckAuth(ctx context.Context) error {
	resp, err := c.request(ctx).Get("/v1")
	if err != nil {
		return transportError(err, http.MethodGet, "/v1")
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.WrapWithCode(unexpected(resp, http.MethodGet, "/v1"), errors.ErrRegistration,
			"Icinga auth check failed",
			"Check icinga.username and icinga.password.")
	}
	return nil
}

// ListHosts returns the names of every host object.
func (c *Client) ListHosts(ctx context.Context) ([]string, error) {
	const path = "/v1/objects/hosts"
	resp, err := c.request(ctx).
		SetQueryParam("attrs", "name").
		ForceContentType("application/json").
		SetResult(&objectList{}).
		Get(path)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusOK {
			return nil, errors.WrapWithCode(err, errors.ErrRegistration,
				"Icinga host list is not valid JSON",
				"Check icinga.server points at the Icinga 2 API.")
		}
		return nil, transportError(err, http.MethodGet, path)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, unexpected(resp, http.MethodGet, path)
	}

	list := resp.Result().(*objectList)
	names := make([]string, 0, len(list.Results))
	for _, r := range list.Results {
		names = append(names, r.Name)
	}
	return names, nil
}

// HostExists asks the API whether host is registered.
func (c *Client) HostExists(ctx context.Context, host string) (bool, error) {
	return c.exists(ctx, "/v1/objects/hosts/{name}", host)
}

func (c *Client) exists(ctx context.Context, path, name string) (bool, error) {
	resp, err := c.request(ctx).
		SetPathParam("name", name).
		Get(path)
	if err != nil {
		return false, transportError(err, http.MethodGet, path)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, unexpected(resp, http.MethodGet, path)
}

// CreateHost registers host. It refuses with ErrHostExists when the host is
// already there.
func (c *Client) CreateHost(ctx context.Context, host string, spec HostSpec) error {
	exists, err := c.HostExists(ctx, host)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrHostExists, host)
	}

	const path = "/v1/objects/hosts/{name}"
	body := hostObject{
		Templates: spec.Templates,
		Attrs:     hostAttrs{Address: spec.Address, Vars: spec.Vars},
	}
	resp, err := c.request(ctx).
		SetPathParam("name", host).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(path)
	if err != nil {
		return transportError(err, http.MethodPut, path)
	}
	if resp.StatusCode() != http.StatusOK {
		return unexpected(resp, http.MethodPut, path)
	}
	c.log.Debug("created icinga host %s", host)
	return nil
}

// DeleteHost removes host together with its services.
func (c *Client) DeleteHost(ctx context.Context, host string) (DeleteResult, error) {
	return c.remove(ctx, "/v1/objects/hosts/{name}", host, true)
}

// DeleteService removes one service from host.
func (c *Client) DeleteService(ctx context.Context, host, service string) (DeleteResult, error) {
	return c.remove(ctx, "/v1/objects/services/{name}", host+"!"+service, false)
}

func (c *Client) remove(ctx context.Context, path, name string, cascade bool) (DeleteResult, error) {
	exists, err := c.exists(ctx, path, name)
	if err != nil {
		return DeleteFailed, err
	}
	if !exists {
		return DeleteNotFound, nil
	}

	req := c.request(ctx).SetPathParam("name", name)
	if cascade {
		req.SetQueryParam("cascade", "1")
	}
	resp, err := req.Delete(path)
	if err != nil {
		return DeleteFailed, transportError(err, http.MethodDelete, path)
	}
	if resp.StatusCode() != http.StatusOK {
		return DeleteFailed, unexpected(resp, http.MethodDelete, path)
	}
	return DeleteDeleted, nil
}
