package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// backoffCap bounds the exponential per-attempt delay.
const backoffCap = 10 * time.Second

// permError marks a failure that happened before the request hit the wire
// (missing session, unencodable body). The retry loop must not touch these.
type permError struct{ err error }

func (e permError) Error() string { return e.err.Error() }
func (e permError) Unwrap() error { return e.err }

// requestSpec describes one logical API call. The retry loop may issue it
// several times; the body is re-marshalled per attempt.
type requestSpec struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	command bool // command endpoint: 422/423 mean the unit's bridge is down
	noAuth  bool // skip auth query params (login only)
	login   bool // 401/422 mean bad credentials, never a stale session
}

// do runs one logical request through the cooldown gate, the retry loop,
// and the single-reauth path, decoding a JSON response into out when the
// call succeeds. out may be nil for endpoints whose body is irrelevant.
func (c *Client) do(ctx context.Context, spec requestSpec, out any) error {
	if err := c.awaitCooldown(ctx, spec.path); err != nil {
		return err
	}

	var (
		attempt    int
		reauthed   bool
		netRetried bool
	)

	for {
		attempt++

		status, body, retryAfter, err := c.roundTrip(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var perm permError
			if errors.As(err, &perm) {
				return perm.err
			}
			if !netRetried {
				netRetried = true
				c.logger.Warn("network error, retrying once",
					"method", spec.method, "path", spec.path, "error", err)
				if serr := c.sleep(ctx, c.backoffDelay(attempt)); serr != nil {
					return serr
				}
				continue
			}
			return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, spec.method, spec.path, err)
		}

		switch classify(status, spec.command) {
		case outcomeSuccess:
			c.cooldown.reset()
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("cloud: decoding %s %s response: %w", spec.method, spec.path, err)
			}
			return nil

		case outcomeAuthExpired:
			if spec.login {
				return fmt.Errorf("%w: status %d", ErrInvalidCredentials, status)
			}
			if reauthed {
				return fmt.Errorf("%w: status %d after re-login", ErrAuthExpired, status)
			}
			reauthed = true
			if err := c.reauth(ctx); err != nil {
				return err
			}
			continue

		case outcomeRetryable:
			if status == http.StatusTooManyRequests {
				c.cooldown.bump(c.now(), c.jitterDur(500*time.Millisecond))
			}
			if attempt < c.maxRetries {
				delay := c.backoffDelay(attempt)
				if status == http.StatusTooManyRequests && retryAfter > 0 {
					delay = retryAfter
				}
				c.logger.Warn("transient backend error, retrying",
					"status", status, "method", spec.method, "path", spec.path,
					"attempt", attempt, "max_attempts", c.maxRetries, "delay", delay.String())
				if serr := c.sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}
			if status == http.StatusTooManyRequests {
				return fmt.Errorf("%w: %d attempts on %s %s", ErrRateLimited, attempt, spec.method, spec.path)
			}
			return fmt.Errorf("%w: status %d after %d attempts on %s %s",
				ErrUnreachable, status, attempt, spec.method, spec.path)

		case outcomeBridgeUnavailable:
			return fmt.Errorf("%w: status %d on %s %s", ErrDeviceBridgeUnavailable, status, spec.method, spec.path)

		default:
			if spec.login && status == http.StatusUnprocessableEntity {
				return fmt.Errorf("%w: status %d", ErrInvalidCredentials, status)
			}
			return &HTTPError{Status: status, Body: trimBody(body), RetryAfter: retryAfter}
		}
	}
}

// roundTrip issues the HTTP request once and drains the response.
func (c *Client) roundTrip(ctx context.Context, spec requestSpec) (status int, body []byte, retryAfter time.Duration, err error) {
	query := url.Values{}
	if !spec.noAuth {
		auth, err := c.authParams()
		if err != nil {
			return 0, nil, 0, permError{err}
		}
		query = auth
	}
	for key, vals := range spec.query {
		for _, v := range vals {
			query.Add(key, v)
		}
	}

	reqURL := c.baseURL + spec.path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if spec.body != nil {
		data, err := json.Marshal(spec.body)
		if err != nil {
			return 0, nil, 0, permError{fmt.Errorf("cloud: encoding %s %s body: %w", spec.method, spec.path, err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, reqURL, reqBody)
	if err != nil {
		return 0, nil, 0, permError{fmt.Errorf("cloud: building request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	for key, val := range spec.headers {
		req.Header.Set(key, val)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, 0, err
	}

	return resp.StatusCode, body, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// backoffDelay computes the jittered exponential delay for an attempt.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := time.Second << uint(attempt-1)
	if base > backoffCap {
		base = backoffCap
	}
	return base + c.jitterDur(500*time.Millisecond)
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP
// date form is not used by this backend.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// trimBody bounds the response excerpt carried inside HTTPError.
func trimBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// randomJitter returns a uniform duration in [0, max).
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
