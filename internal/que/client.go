package que

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/que-core/internal/infrastructure/config"
)

// API endpoints relative to the base URL.
const (
	DefaultBaseURL    = "https://que.actronair.com.au"
	userDevicesPath   = "/api/v0/client/user-devices"
	tokenPath         = "/api/v0/oauth/token"
	accountPath       = "/api/v0/client/account"
	acSystemsPath     = "/api/v0/client/ac-systems"
	statusLatestPath  = acSystemsPath + "/status/latest"
	commandSendPath   = acSystemsPath + "/cmds/send"
	defaultClientType = "Android"
	oauthClientID     = "app"
)

// Default transport settings.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryDelay     = 500 * time.Millisecond

	// Tokens are refreshed this long before the server-side expiry.
	expirySkew = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to the Actron Que cloud API.
//
// The client pairs with the account once, then exchanges the pairing token
// for short-lived access tokens. Every API call checks the access token's
// expiry first and refreshes it when needed.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	cfg        config.QueConfig
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	logger     Logger
	now        func() time.Time

	mu           sync.Mutex
	pairingToken string
	accessToken  string
	tokenType    string
	expiresAt    time.Time
}

// New creates a client from configuration. It does not contact the API;
// authentication happens on the first call.
//
// Returns ErrMissingCredentials if username or password is empty.
func New(cfg config.QueConfig) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.ClientType == "" {
		cfg.ClientType = defaultClientType
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "que-core"
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = cfg.DeviceID
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	delay := time.Duration(cfg.RetryDelay) * time.Millisecond
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &Client{
		baseURL:    base,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retries:    max(cfg.Retries, 0),
		retryDelay: delay,
		logger:     noopLogger{},
		now:        time.Now,
	}, nil
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Authenticate registers this client as a device on the account and stores
// the resulting pairing token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	form := url.Values{
		"username":               {c.cfg.Username},
		"password":               {c.cfg.Password},
		"deviceName":             {c.cfg.DeviceName},
		"client":                 {c.cfg.ClientType},
		"deviceUniqueIdentifier": {c.cfg.DeviceID},
	}

	var resp struct {
		PairingToken string `json:"pairingToken"`
	}
	if err := c.postForm(ctx, userDevicesPath, form, &resp); err != nil {
		return fmt.Errorf("%w: pairing: %w", ErrAuthFailed, err)
	}
	if resp.PairingToken == "" {
		return fmt.Errorf("%w: pairing response has no token", ErrAuthFailed)
	}

	c.pairingToken = resp.PairingToken
	c.logger.Info("paired with que cloud", "device_id", c.cfg.DeviceID)
	return nil
}

// refreshLocked exchanges the pairing token for an access token.
func (c *Client) refreshLocked(ctx context.Context) error {
	if c.pairingToken == "" {
		if err := c.authenticateLocked(ctx); err != nil {
			return err
		}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.pairingToken},
		"client_id":     {oauthClientID},
	}

	var resp struct {
		AccessToken string      `json:"access_token"`
		TokenType   string      `json:"token_type"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := c.postForm(ctx, tokenPath, form, &resp); err != nil {
		// A rejected pairing token is re-paired on the next attempt.
		c.pairingToken = ""
		return fmt.Errorf("%w: token refresh: %w", ErrAuthFailed, err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("%w: token response has no access_token", ErrAuthFailed)
	}

	secs, err := resp.ExpiresIn.Float64()
	if err != nil {
		secs = 0
	}
	if resp.TokenType == "" {
		resp.TokenType = "Bearer"
	}

	c.accessToken = resp.AccessToken
	c.tokenType = resp.TokenType
	c.expiresAt = c.now().Add(time.Duration(secs * float64(time.Second)))
	c.logger.Debug("access token refreshed", "expires_at", c.expiresAt)
	return nil
}

// authorization returns the Authorization header value, refreshing the
// access token when it has expired.
func (c *Client) authorization(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || !c.now().Add(expirySkew).Before(c.expiresAt) {
		if err := c.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.tokenType + " " + c.accessToken, nil
}

// invalidate forces a token refresh before the next call.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// postForm sends an unauthenticated form POST and decodes the JSON reply.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return decodeJSON(resp.Body, out)
}

// getJSON performs an authenticated GET with retries and decodes the reply.
//
// Transport errors, 5xx responses and a 401 (after forcing a token refresh)
// are retried; other failures return immediately.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request", "path", path, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		retry, err := c.getOnce(ctx, target, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, target string, out any) (retry bool, err error) {
	auth, err := c.authorization(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			c.invalidate()
			return true, err
		case resp.StatusCode >= http.StatusInternalServerError:
			return true, err
		}
		return false, err
	}
	return false, decodeJSON(resp.Body, out)
}

// postJSON performs an authenticated JSON POST. Commands are not retried.
func (c *Client) postJSON(ctx context.Context, path string, query url.Values, body any) error {
	auth, err := c.authorization(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse
	defer func() { _, _ = io.Copy(io.Discard, resp.Body) }()

	if err := checkStatus(resp); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidate()
		}
		return err
	}
	return nil
}

// checkStatus maps a non-2xx response to ErrUnexpectedStatus.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort detail
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, msg)
}

// decodeJSON decodes a response body keeping numbers as json.Number so
// integers and floats are told apart downstream.
func decodeJSON(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidResponse)
		}
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
