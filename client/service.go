// Package client provides the generic plumbing shared by all RoutePulse API
// wrappers: a lazily-built HTTP client, a single call handle per service
// instance, and synchronous/asynchronous execution over it. Concrete
// services only declare where they live (BaseURL) and how their call is
// built (NewCall); everything else is delegated to net/http.
//
// The wrapper deliberately carries no retry, backoff, or caching policy.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Requests beyond this URL length are rejected before hitting the wire.
const maxURLSize = 8 * 1024

const defaultTimeout = 30 * time.Second

// ErrMissingBaseURL reports an endpoint whose base URL is empty or unusable.
var ErrMissingBaseURL = errors.New("client: endpoint base URL is missing or invalid")

// Doer is the minimal transport contract; *http.Client satisfies it.
// Substituting a custom Doer replaces the built-in client entirely.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Endpoint declares a concrete remote service. BaseURL is validated when the
// Service is constructed; NewCall builds the service's single call handle on
// first use.
type Endpoint[T any] interface {
	BaseURL() string
	NewCall(s *Service[T]) (*Call[T], error)
}

// Service manages one endpoint: one lazily-created HTTP client and one
// lazily-created call handle. The zero value is not usable; construct with
// New.
type Service[T any] struct {
	endpoint Endpoint[T]
	debug    bool

	clientMu   sync.Mutex
	httpClient *http.Client
	doer       Doer // custom transport, wins over httpClient when set

	callMu sync.Mutex
	call   *Call[T]
}

// New wraps an endpoint. The base URL is checked here so that configuration
// mistakes surface at construction rather than on the first request.
func New[T any](endpoint Endpoint[T]) (*Service[T], error) {
	base := endpoint.BaseURL()
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingBaseURL, base)
	}
	return &Service[T]{endpoint: endpoint}, nil
}

// EnableDebug toggles request/response logging on the built-in client.
// It only affects clients built after the toggle.
func (s *Service[T]) EnableDebug(enable bool) {
	s.clientMu.Lock()
	s.debug = enable
	s.clientMu.Unlock()
}

// SetTransport substitutes a custom transport for the built-in HTTP client.
func (s *Service[T]) SetTransport(d Doer) {
	s.clientMu.Lock()
	s.doer = d
	s.clientMu.Unlock()
}

// Client returns the transport used for calls: the custom Doer when one was
// set, otherwise the built-in HTTP client, constructed at most once even
// under concurrent access.
func (s *Service[T]) Client() Doer {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if s.doer != nil {
		return s.doer
	}
	if s.httpClient == nil {
		transport := http.RoundTripper(&http.Transport{
			DialContext:           (&net.Dialer{Timeout: defaultTimeout}).DialContext,
			TLSHandshakeTimeout:   defaultTimeout,
			ResponseHeaderTimeout: defaultTimeout,
		})
		if s.debug {
			transport = &loggingTransport{base: transport}
		}
		s.httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		}
	}
	return s.httpClient
}

// getCall returns the service's call handle, building it on first use.
func (s *Service[T]) getCall() (*Call[T], error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if s.call != nil {
		return s.call, nil
	}
	call, err := s.endpoint.NewCall(s)
	if err != nil {
		return nil, fmt.Errorf("client: build call: %w", err)
	}
	if u := call.req.URL.String(); len(u) > maxURLSize {
		return nil, fmt.Errorf("client: request URL exceeds %d bytes", maxURLSize)
	}
	s.call = call
	return s.call, nil
}

// Execute runs the service's call synchronously and returns its response.
func (s *Service[T]) Execute(ctx context.Context) (*Response[T], error) {
	call, err := s.getCall()
	if err != nil {
		return nil, err
	}
	return call.Execute(ctx)
}

// Enqueue runs the service's call asynchronously, delivering the outcome to
// the callback. An error is returned only when the call cannot be built.
func (s *Service[T]) Enqueue(ctx context.Context, cb Callback[T]) error {
	call, err := s.getCall()
	if err != nil {
		return err
	}
	call.Enqueue(ctx, cb)
	return nil
}

// Cancel requests cancellation of the service's call. A call that was never
// created is left alone.
func (s *Service[T]) Cancel() {
	s.callMu.Lock()
	call := s.call
	s.callMu.Unlock()
	if call != nil {
		call.Cancel()
	}
}

// Clone returns a fresh call handle with the same request parameters,
// independent of the service's own handle.
func (s *Service[T]) Clone() (*Call[T], error) {
	call, err := s.getCall()
	if err != nil {
		return nil, err
	}
	return call.Clone(), nil
}
