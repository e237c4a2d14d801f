package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// ErrCanceled reports that a call was canceled before or while it was in
// flight. Cancellation is a distinct outcome, not a transport failure.
var ErrCanceled = errors.New("client: call canceled")

// ErrAlreadyExecuted reports a second Execute/Enqueue on the same handle.
// Clone the call to run the same request again.
var ErrAlreadyExecuted = errors.New("client: call already executed")

// Call states. A handle never returns to idle; Clone is the only way to get
// a fresh one.
const (
	stateIdle int32 = iota
	stateExecuting
	stateCompleted
	stateCanceled
)

// Call is a handle for one HTTP request. It can be executed synchronously,
// enqueued with a callback, canceled, or cloned. A handle is single-shot and
// is not safe for concurrent Execute/Enqueue from multiple goroutines.
type Call[T any] struct {
	doer Doer
	req  *http.Request

	state    atomic.Int32
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewCall wraps a prepared request into a call handle. The request is used
// as a template and cloned for each execution.
func NewCall[T any](doer Doer, req *http.Request) *Call[T] {
	return &Call[T]{doer: doer, req: req}
}

// Response carries the decoded body together with the transport-level result.
type Response[T any] struct {
	StatusCode int
	Header     http.Header
	Body       T
	Raw        []byte
}

// IsSuccessful reports whether the status code is in the 2xx range.
func (r *Response[T]) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Callback receives the outcome of an enqueued call. OnFailure is handed
// ErrCanceled (wrapped) when the call was canceled.
type Callback[T any] struct {
	OnResponse func(*Response[T])
	OnFailure  func(error)
}

// Execute performs the request synchronously and decodes a 2xx JSON body
// into T. Network failures surface as errors; cancellation surfaces as
// ErrCanceled.
func (c *Call[T]) Execute(ctx context.Context) (*Response[T], error) {
	if !c.state.CompareAndSwap(stateIdle, stateExecuting) {
		switch c.state.Load() {
		case stateCanceled:
			return nil, ErrCanceled
		default:
			return nil, ErrAlreadyExecuted
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()

	req := c.req.Clone(ctx)
	resp, err := c.doer.Do(req)
	if err != nil {
		if c.state.Load() == stateCanceled || errors.Is(err, context.Canceled) {
			c.state.Store(stateCanceled)
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrCanceled)
		}
		c.state.Store(stateCompleted)
		return nil, fmt.Errorf("client: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if c.state.Load() == stateCanceled || errors.Is(err, context.Canceled) {
			c.state.Store(stateCanceled)
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrCanceled)
		}
		c.state.Store(stateCompleted)
		return nil, fmt.Errorf("client: read response body: %w", err)
	}

	out := &Response[T]{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Raw:        raw,
	}
	if out.IsSuccessful() && len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			c.state.Store(stateCompleted)
			return nil, fmt.Errorf("client: decode response: %w", err)
		}
	}

	// Cancel may race the final read; completion wins only if nobody
	// canceled first.
	if !c.state.CompareAndSwap(stateExecuting, stateCompleted) && c.state.Load() == stateCanceled {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrCanceled)
	}
	return out, nil
}

// Enqueue performs the request asynchronously. The callback runs on the
// goroutine the transport dispatch uses; no ordering beyond that is
// guaranteed.
func (c *Call[T]) Enqueue(ctx context.Context, cb Callback[T]) {
	go func() {
		resp, err := c.Execute(ctx)
		if err != nil {
			if cb.OnFailure != nil {
				cb.OnFailure(err)
			}
			return
		}
		if cb.OnResponse != nil {
			cb.OnResponse(resp)
		}
	}()
}

// Cancel requests best-effort cancellation. It is idempotent and has no
// effect once the call has completed.
func (c *Call[T]) Cancel() {
	for {
		switch s := c.state.Load(); s {
		case stateCompleted, stateCanceled:
			return
		case stateIdle:
			if c.state.CompareAndSwap(stateIdle, stateCanceled) {
				return
			}
		case stateExecuting:
			if c.state.CompareAndSwap(stateExecuting, stateCanceled) {
				c.cancelMu.Lock()
				if c.cancel != nil {
					c.cancel()
				}
				c.cancelMu.Unlock()
				return
			}
		default:
			return
		}
	}
}

// Canceled reports whether the handle ended up canceled.
func (c *Call[T]) Canceled() bool {
	return c.state.Load() == stateCanceled
}

// Clone returns a fresh idle handle with the same request parameters.
// Its execution and cancellation state is independent of the original.
func (c *Call[T]) Clone() *Call[T] {
	return &Call[T]{doer: c.doer, req: c.req.Clone(context.Background())}
}
