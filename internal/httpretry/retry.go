// Package httpretry sends JSON API requests with exponential backoff on
// transport errors, 429 and 5xx responses.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusError is returned for a non-2xx response that is not retried (or
// that exhausted its retries).
type StatusError struct {
	Status     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected status " + e.Status
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// Policy controls retries. The zero value retries nothing.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// Default mirrors what hosted model APIs tolerate well: 5 retries, 200ms
// doubling up to 5s.
func Default() Policy {
	return Policy{MaxRetries: 5, Base: 200 * time.Millisecond, Max: 5 * time.Second}
}

// Delay returns the backoff before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := p.Base << attempt
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Do executes the request built by newReq and returns the body of the first
// 2xx response. newReq is called once per attempt so bodies can be replayed.
func (p Policy) Do(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if werr := p.wait(ctx, p.Delay(attempt), attempt); werr != nil {
				return nil, lastErr
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Status: resp.Status, StatusCode: resp.StatusCode, Body: truncate(body)}
			delay := p.Delay(attempt)
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
				delay = time.Duration(secs) * time.Second
			}
			if werr := p.wait(ctx, delay, attempt); werr != nil {
				return nil, lastErr
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Status: resp.Status, StatusCode: resp.StatusCode, Body: truncate(body)}
		}
		if readErr != nil {
			lastErr = readErr
			if werr := p.wait(ctx, p.Delay(attempt), attempt); werr != nil {
				return nil, lastErr
			}
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// wait sleeps before the next attempt. It reports an error when no attempts
// remain or ctx ends first.
func (p Policy) wait(ctx context.Context, d time.Duration, attempt int) error {
	if attempt >= p.MaxRetries {
		return fmt.Errorf("retries exhausted")
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
