package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. Each call is attempted exactly once; callers decide what a failure
// means for their request.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
	Target  string
	Logger  *zerolog.Logger
}

// Do executes the request. Transport errors and 5xx responses count as
// breaker failures. While the breaker is open ErrOpenCircuit is returned
// without contacting the upstream. The response body must be closed by the
// caller; it stays readable until ctx is done.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		// default to closed breaker that never trips
		breaker = NewBreaker(1, 1, time.Second)
	}
	if cl.Logger != nil && zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = cl.Logger.WithContext(ctx)
	}
	if !breaker.Allow(ctx) {
		return nil, cl.rejection(breaker)
	}

	callCtx, cancel := context.WithCancel(ctx)
	if timeout := cl.timeout(); timeout > 0 {
		cancel()
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	resp, err := cl.Client.Do(req.Clone(callCtx))
	if err != nil {
		cancel()
		breaker.Report(ctx, false)
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	breaker.Report(ctx, resp.StatusCode < http.StatusInternalServerError)
	return resp, nil
}

// OpenCircuit returns an *OpenCircuitError while the breaker is open and
// nil otherwise.
func (cl HTTPClient) OpenCircuit() error {
	if cl.Breaker == nil || cl.Breaker.State() != Open {
		return nil
	}
	return cl.rejection(cl.Breaker)
}

func (cl HTTPClient) rejection(b *Breaker) *OpenCircuitError {
	rej := b.Rejection()
	if cl.Target != "" {
		rej.Target = cl.Target
	}
	return rej
}

func (cl HTTPClient) timeout() time.Duration {
	if cl.Timeout > 0 {
		return cl.Timeout
	}
	return cl.Client.Timeout
}

func (cl HTTPClient) targetLabel() string {
	if cl.Target == "" {
		return "upstream"
	}
	return cl.Target
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
