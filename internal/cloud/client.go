package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

const userAgent = "dkn-cloud-bridge/1.0"

// CredentialSource supplies the account credentials on demand. The client
// asks for them at login and again if the session must be re-established;
// it never retains the password between those moments.
type CredentialSource interface {
	Credentials() (email, password string, err error)
}

// StaticCredentials is a CredentialSource over fixed values, typically the
// configuration file or environment overrides.
type StaticCredentials struct {
	Email    string
	Password string
}

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials() (string, string, error) {
	if s.Email == "" || s.Password == "" {
		return "", "", ErrInvalidCredentials
	}
	return s.Email, s.Password, nil
}

// Client talks to the DKN cloud backend. Safe for concurrent use; the
// session token and rate-limit cooldown are shared across all requests.
type Client struct {
	baseURL    string
	creds      CredentialSource
	httpClient *http.Client
	logger     *logging.Logger
	maxRetries int

	cooldown cooldownGate

	mu    sync.Mutex
	email string
	token string

	// Injectable for deterministic tests.
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	jitterDur func(max time.Duration) time.Duration
}

// New creates a cloud client from configuration.
//
// Parameters:
//   - cfg: Validated application configuration (base URL, timeout, retries)
//   - creds: Credential source consulted at login and re-login
//   - logger: Parent logger; the client logs under component "cloud"
//
// Returns:
//   - *Client: Ready client; call Login before data methods
func New(cfg *config.Config, creds CredentialSource, logger *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Cloud.BaseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: cfg.GetRequestTimeout(),
		},
		logger:     logger.With("component", "cloud"),
		maxRetries: cfg.Cloud.MaxRetries,
		now:        time.Now,
		sleep:      sleepCtx,
		jitterDur:  randomJitter,
	}
}

// Login authenticates against /users/sign_in and stores the session token.
// The password is requested from the credential source for this call only.
func (c *Client) Login(ctx context.Context) error {
	email, password, err := c.creds.Credentials()
	if err != nil {
		return err
	}

	var resp struct {
		User struct {
			AuthenticationToken string `json:"authentication_token"`
		} `json:"user"`
	}

	err = c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   "/users/sign_in",
		body:   map[string]string{"email": email, "password": password},
		noAuth: true,
		login:  true,
	}, &resp)
	if err != nil {
		return err
	}

	if resp.User.AuthenticationToken == "" {
		c.logger.Error("login returned no token", "email", logging.Redact(email))
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}

	c.mu.Lock()
	c.email = email
	c.token = resp.User.AuthenticationToken
	c.mu.Unlock()

	c.logger.Info("login ok", "email", logging.Redact(email))
	return nil
}

// session returns the current email/token pair.
func (c *Client) session() (email, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email, c.token
}

// authParams builds the query parameters the backend expects on every
// authenticated request.
func (c *Client) authParams() (url.Values, error) {
	email, token := c.session()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return url.Values{
		"format":     []string{"json"},
		"user_email": []string{email},
		"user_token": []string{token},
	}, nil
}

// reauth re-establishes the session after a mid-flight 401. Exactly one
// attempt; failure means the caller sees ErrAuthExpired.
func (c *Client) reauth(ctx context.Context) error {
	c.logger.Warn("session token rejected, re-authenticating")
	if err := c.Login(ctx); err != nil {
		return fmt.Errorf("%w: re-login failed: %v", ErrAuthExpired, err)
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
