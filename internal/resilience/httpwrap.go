package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"
)

var errNoHTTPClient = errors.New("resilience: http client not configured")

// HTTPClient sends upstream requests with a per-attempt deadline behind a
// circuit breaker.
//
// Only idempotent methods are retried. A POST is attempted once so the
// upstream never sees a duplicate order or payment session.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do sends req, retrying transport errors and 5xx replies while attempts remain.
// The final 5xx reply is returned as-is so the caller can decode its body.
// ErrOpenCircuit is returned when the breaker refuses the call.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errNoHTTPClient
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(math.MaxInt32, 1, time.Second)
	}
	attempts := 1
	if cl.MaxAttempts > 1 && retryable(req.Method) {
		attempts = cl.MaxAttempts
	}
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, Backoff(base, attempt-1, cl.Jitter)); err != nil {
				return nil, err
			}
		}
		if !breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}

		resp, err := cl.send(ctx, req, body)
		switch {
		case err != nil && ctx.Err() != nil:
			// the caller gave up; not the upstream's fault
			breaker.Abandon()
			return nil, ctx.Err()
		case err != nil:
			breaker.Report(ctx, false)
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			breaker.Report(ctx, false)
			if attempt == attempts {
				return resp, nil
			}
			_ = resp.Body.Close()
		default:
			breaker.Report(ctx, true)
			return resp, nil
		}
	}
	return nil, lastErr
}

func retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// send performs one attempt. The attempt deadline lives until the response
// body is closed.
func (cl HTTPClient) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}

	out := req.Clone(attemptCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// snapshotBody reads the request body once so every attempt can replay it.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}
