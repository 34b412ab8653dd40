package emax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// userAgent mirrors the vendor's Android app; the API rejects unknown
// clients on some endpoints.
const userAgent = "Emax-Weather-App/3.0 Android/10"

const (
	pathLogin    = "/account/login"
	pathRealtime = "/weather/devData/getRealtime"
	pathHistory  = "/weather/devData/getRecord"
	pathDevices  = "/weather/getBindedDevice"
)

// DefaultTimeout bounds every vendor call unless the config overrides it.
const DefaultTimeout = 10 * time.Second

// Client talks to the Emax cloud API. It owns the bearer token and the
// underlying connection pool; the pool is created lazily on first use and
// recreated transparently if the client was closed.
//
// Every method returns a classified error (ErrAuth, ErrTimeout,
// ErrMalformed, ErrVendor, ErrTransport) instead of panicking, so callers
// can poll indefinitely and decide what a failure means.
type Client struct {
	email    string
	password string
	baseURL  string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	log      *logrus.Entry

	mu         sync.Mutex
	httpClient *http.Client
	token      string
	profile    map[string]any
}

// NewClient creates a client for the given account. A timeout of zero
// falls back to DefaultTimeout.
func NewClient(email, password, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		email:    email,
		password: password,
		baseURL:  baseURL,
		timeout:  timeout,
		breaker:  newBreaker("emax-api"),
		log:      logrus.WithField("component", "emax"),
	}
}

// session returns the owned HTTP client, creating it if the client was
// never used or was closed.
func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c.httpClient
}

// Login authenticates with the hashed password and stores the returned
// token and user profile. The stored token is left untouched on failure.
func (c *Client) Login(ctx context.Context) error {
	payload := map[string]string{
		"email": c.email,
		"pwd":   HashPassword(c.password),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding login payload: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathLogin, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.WithField("email", c.email).Debug("logging in")

	resp, err := doRequest(c.session(), c.breaker, req)
	if err != nil {
		c.log.WithError(err).Error("login failed")
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding login response: %v", ErrMalformed, err)
	}

	var content map[string]any
	if len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, &content); err != nil {
			return fmt.Errorf("%w: decoding login content: %v", ErrMalformed, err)
		}
	}

	token, _ := content["token"].(string)
	if token == "" {
		c.log.Error("no token in login response")
		return fmt.Errorf("%w: no token in login response", ErrAuth)
	}

	c.mu.Lock()
	c.token = token
	c.profile = content
	c.mu.Unlock()

	nickname, _ := content["nickname"].(string)
	if nickname == "" {
		nickname = c.email
	}
	c.log.WithField("nickname", nickname).Info("logged in")
	return nil
}

// ensureToken performs a lazy login when no token is held yet.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.Token() != "" {
		return nil
	}
	return c.Login(ctx)
}

// FetchRealtime returns the current snapshot. It logs in first if no token
// is held; a failed login aborts without a realtime call.
func (c *Client) FetchRealtime(ctx context.Context) (*Snapshot, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	req, err := c.authedRequest(ctx, pathRealtime, nil, true)
	if err != nil {
		return nil, err
	}

	c.log.Debug("fetching realtime data")

	resp, err := doRequest(c.session(), c.breaker, req)
	if err != nil {
		c.log.WithError(err).Error("realtime fetch failed")
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding realtime response: %v", ErrMalformed, err)
	}
	if len(env.Content) == 0 || string(env.Content) == "null" {
		return nil, fmt.Errorf("%w: no content in realtime response", ErrMalformed)
	}

	var snap Snapshot
	if err := json.Unmarshal(env.Content, &snap); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", ErrMalformed, err)
	}
	return &snap, nil
}

// FetchHistory returns historical records between the given dates
// (vendor format 2006-01-02). The vendor signals success with envelope
// status "0"; anything else surfaces as ErrVendor with the vendor message.
func (c *Client) FetchHistory(ctx context.Context, startDate, endDate string) (map[string]any, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startDate", startDate)
	params.Set("endDate", endDate)

	req, err := c.authedRequest(ctx, pathHistory, params, false)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{"start": startDate, "end": endDate}).Debug("fetching history")

	resp, err := doRequest(c.session(), c.breaker, req)
	if err != nil {
		c.log.WithError(err).Error("history fetch failed")
		return nil, err
	}
	defer resp.Body.Close()

	env, err := decodeVendorEnvelope(resp)
	if err != nil {
		c.log.WithError(err).Error("history fetch rejected")
		return nil, err
	}

	var content map[string]any
	if len(env.Content) > 0 && string(env.Content) != "null" {
		if err := json.Unmarshal(env.Content, &content); err != nil {
			return nil, fmt.Errorf("%w: decoding history content: %v", ErrMalformed, err)
		}
	}
	return content, nil
}

// ListDevices returns the devices bound to the account. A successful
// response without content yields an empty slice.
func (c *Client) ListDevices(ctx context.Context) ([]map[string]any, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	req, err := c.authedRequest(ctx, pathDevices, nil, true)
	if err != nil {
		return nil, err
	}

	c.log.Debug("fetching bound devices")

	resp, err := doRequest(c.session(), c.breaker, req)
	if err != nil {
		c.log.WithError(err).Error("device list fetch failed")
		return nil, err
	}
	defer resp.Body.Close()

	env, err := decodeVendorEnvelope(resp)
	if err != nil {
		c.log.WithError(err).Error("device list rejected")
		return nil, err
	}

	devices := []map[string]any{}
	if len(env.Content) > 0 && string(env.Content) != "null" {
		if err := json.Unmarshal(env.Content, &devices); err != nil {
			return nil, fmt.Errorf("%w: decoding device list: %v", ErrMalformed, err)
		}
	}
	return devices, nil
}

// Token returns the current bearer token, empty until the first
// successful login.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Profile returns a copy of the account profile captured at login
// (nickname, deviceModel, deviceVersion). Nil before the first login.
func (c *Client) Profile() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil
	}
	out := make(map[string]any, len(c.profile))
	for k, v := range c.profile {
		out[k] = v
	}
	return out
}

// Close releases the owned connection pool. Calling it repeatedly, or
// before the client was ever used, is a no-op; a later call recreates the
// pool transparently.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
}

// authedRequest builds a GET with the token header and, where the vendor
// requires it, the fixed client identification header.
func (c *Client) authedRequest(ctx context.Context, path string, params url.Values, withUserAgent bool) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("emaxToken", c.Token())
	if withUserAgent {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// decodeVendorEnvelope decodes a status/message/content envelope and
// enforces the vendor success code.
func decodeVendorEnvelope(resp *http.Response) (*envelope, error) {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMalformed, err)
	}
	if env.Status != "0" {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s (status %s)", ErrVendor, msg, env.Status)
	}
	return &env, nil
}
