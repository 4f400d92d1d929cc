package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

// sleepRecorder captures retry delays instead of sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

func (r *sleepRecorder) last() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.delays) == 0 {
		return 0
	}
	return r.delays[len(r.delays)-1]
}

func discardLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestClient(t *testing.T, baseURL string) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	c := &Client{
		baseURL:    baseURL,
		creds:      StaticCredentials{Email: "user@example.com", Password: "secret"},
		httpClient: &http.Client{Timeout: 2 * time.Second},
		logger:     discardLogger(),
		maxRetries: 3,
		now:        time.Now,
		sleep:      rec.sleep,
		jitterDur:  func(time.Duration) time.Duration { return 0 },
	}
	return c, rec
}

func loginHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"authentication_token": token},
		})
	}
}

func TestLogin_StoresToken(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/sign_in" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Has("user_token") {
			t.Error("login must not carry auth query params")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		loginHandler("tok-123")(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, token := c.session(); token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
	if gotBody["email"] != "user@example.com" || gotBody["password"] != "secret" {
		t.Errorf("login body = %v", gotBody)
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusUnprocessableEntity} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c, _ := newTestClient(t, srv.URL)
		err := c.Login(context.Background())
		srv.Close()
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("status %d: err = %v, want ErrInvalidCredentials", status, err)
		}
	}
}

func TestLogin_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(loginHandler(""))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	if err := c.Login(context.Background()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRequest_AuthQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/sign_in" {
			loginHandler("tok-9")(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("user_email") != "user@example.com" || q.Get("user_token") != "tok-9" {
			t.Errorf("auth params missing: %v", q)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("auth must never travel in headers")
		}
		json.NewEncoder(w).Encode(map[string]any{"installation_relations": []any{}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.FetchInstallations(context.Background()); err != nil {
		t.Fatalf("FetchInstallations: %v", err)
	}
}

func TestRequest_NotAuthenticated(t *testing.T) {
	c, _ := newTestClient(t, "http://example.invalid")
	_, err := c.FetchInstallations(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestRequest_ReauthOnce(t *testing.T) {
	var logins, dataCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/sign_in" {
			logins++
			loginHandler("tok-fresh")(w, r)
			return
		}
		dataCalls++
		if r.URL.Query().Get("user_token") == "tok-stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"installation_relations": []any{}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok-stale"

	if _, err := c.FetchInstallations(context.Background()); err != nil {
		t.Fatalf("FetchInstallations: %v", err)
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if dataCalls != 2 {
		t.Errorf("data calls = %d, want 2", dataCalls)
	}
}

func TestRequest_SecondUnauthorizedIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/sign_in" {
			loginHandler("tok-still-bad")(w, r)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok-stale"

	_, err := c.FetchInstallations(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
}

func TestRequest_RateLimitRetryBound(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	_, err := c.FetchInstallations(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if calls != c.maxRetries {
		t.Errorf("calls = %d, want exactly %d", calls, c.maxRetries)
	}
	if c.cooldown.pending(c.now()) <= 0 {
		t.Error("persistent cooldown should be active after rate limiting")
	}
}

func TestRequest_RetryAfterHonoured(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"installation_relations": []any{}})
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	if _, err := c.FetchInstallations(context.Background()); err != nil {
		t.Fatalf("FetchInstallations: %v", err)
	}
	if rec.last() != 7*time.Second {
		t.Errorf("retry delay = %v, want 7s from Retry-After", rec.last())
	}
}

func TestRequest_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"installation_relations": []any{}})
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	if _, err := c.FetchInstallations(context.Background()); err != nil {
		t.Fatalf("FetchInstallations: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Exponential: 1s then 2s (jitter zeroed in tests).
	if rec.count() != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [1s 2s]", rec.delays)
	}
}

func TestRequest_ServerErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	_, err := c.FetchInstallations(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestRequest_FatalClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"no such device"}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	_, err := c.FetchInstallations(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", httpErr.Status)
	}
	if rec.count() != 0 {
		t.Error("fatal errors must not be retried")
	}
}

func TestRequest_NetworkErrorSingleRetry(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused from here on

	c, rec := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"

	_, err := c.FetchInstallations(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if rec.count() != 1 {
		t.Errorf("retries = %d, want exactly 1 transparent retry", rec.count())
	}
}

func TestRequest_CancellationPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.email = "user@example.com"
	c.token = "tok"
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.FetchInstallations(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnreachable) {
		t.Error("cancellation must never be reclassified")
	}
}

func TestCooldownGate_Doubling(t *testing.T) {
	g := &cooldownGate{}
	base := time.Unix(1000, 0)

	want := []time.Duration{5, 10, 20, 40, 60, 60}
	for i, w := range want {
		g.bump(base, 0)
		if g.backoff != w*time.Second {
			t.Fatalf("bump %d: backoff = %v, want %v", i+1, g.backoff, w*time.Second)
		}
	}

	if g.pending(base) != 60*time.Second {
		t.Errorf("pending = %v, want 60s", g.pending(base))
	}
	if g.pending(base.Add(2 * time.Minute)) != 0 {
		t.Error("cooldown should expire with time")
	}

	g.reset()
	g.bump(base, 0)
	if g.backoff != cooldownMin {
		t.Errorf("backoff after reset = %v, want %v", g.backoff, cooldownMin)
	}
}

func TestNew_AppliesConfiguredTimeout(t *testing.T) {
	cfg := &config.Config{
		Cloud: config.CloudConfig{
			BaseURL:        "https://dkn.example.com/",
			RequestTimeout: 7,
			MaxRetries:     2,
		},
	}

	c := New(cfg, StaticCredentials{Email: "user@example.com", Password: "secret"}, discardLogger())

	if c.httpClient.Timeout != 7*time.Second {
		t.Errorf("timeout = %v, want 7s", c.httpClient.Timeout)
	}
	if c.baseURL != "https://dkn.example.com" {
		t.Errorf("baseURL = %q, want trailing slash stripped", c.baseURL)
	}
	if c.maxRetries != 2 {
		t.Errorf("maxRetries = %d, want 2", c.maxRetries)
	}
}
