package leviton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/leviton-sync/internal/store"
)

// Default endpoints for the Leviton cloud service.
const (
	DefaultBaseURL   = "https://my.leviton.com/api"
	DefaultSocketURL = "wss://my.leviton.com/socket"
)

// defaultRequestTimeout bounds individual REST calls when the caller's
// context carries no deadline of its own.
const defaultRequestTimeout = 30 * time.Second

// tokenExpiryMargin renews the session this long before the token expires,
// so an in-flight call never races the server-side cutoff.
const tokenExpiryMargin = 5 * time.Minute

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client is the authenticated Leviton cloud transport: REST request methods
// plus a factory for push-channel sockets.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Session state (token, expiry)
//     is guarded by an internal mutex.
type Client struct {
	baseURL    string
	socketURL  string
	email      string
	password   string
	httpClient *http.Client
	logger     Logger

	mu          sync.Mutex
	token       string
	userID      string
	tokenExpiry time.Time
}

// NewClient creates a Leviton client for one account.
// The client logs in lazily on the first request.
func NewClient(email, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		socketURL:  DefaultSocketURL,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     noopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Login establishes a fresh session. Most callers never need this directly;
// requests log in on demand and renew expired sessions automatically.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Email: c.email, Password: c.password})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Person/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: login rejected (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: login returned status %d", ErrConnection, resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("%w: decoding login response: %w", ErrConnection, err)
	}
	if lr.ID == "" {
		return fmt.Errorf("%w: login response missing token", ErrAuth)
	}

	c.mu.Lock()
	c.token = lr.ID
	c.userID = lr.UserID
	c.tokenExpiry = tokenExpiry(lr)
	c.mu.Unlock()

	c.logger.Debug("leviton session established", "user_id", lr.UserID)
	return nil
}

// tokenExpiry derives the session expiry, preferring the exp claim if the
// token parses as a JWT and falling back to the reported TTL. An unreadable
// token yields the TTL-based estimate (or one hour if TTL is absent).
func tokenExpiry(lr loginResponse) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(lr.ID, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if lr.TTL > 0 {
		return time.Now().Add(time.Duration(lr.TTL) * time.Second)
	}
	return time.Now().Add(time.Hour)
}

// ensureSession logs in if there is no session or the current one is close
// to expiry.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	valid := c.token != "" && time.Until(c.tokenExpiry) > tokenExpiryMargin
	c.mu.Unlock()
	if valid {
		return nil
	}
	return c.Login(ctx)
}

// UserID returns the session owner's id, or empty if not logged in.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// do performs an authenticated request and decodes the JSON response into
// out (which may be nil for calls whose response body is irrelevant).
// A 401 triggers one re-login and retry; a second rejection is ErrAuth.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		c.logger.Debug("session rejected mid-flight, re-authenticating", "path", path)
		if err := c.Login(ctx); err != nil {
			return err
		}
		resp, err = c.request(ctx, method, path, body)
		if err != nil {
			return err
		}
	}
	defer drainAndClose(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned status %d", ErrAuth, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s returned status %d", ErrConnection, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrConnection, path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	req.Header.Set("Authorization", c.token)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return resp, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// GetPermissions fetches the account's residential permissions.
// Also serves as the lightweight session-validation call used before
// reconnect attempts.
func (c *Client) GetPermissions(ctx context.Context) ([]Permission, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	var perms []Permission
	path := fmt.Sprintf("/Person/%s/residentialPermissions", c.UserID())
	if err := c.do(ctx, http.MethodGet, path, nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetResidences fetches the residences of a residential account.
func (c *Client) GetResidences(ctx context.Context, accountID int) ([]store.Residence, error) {
	var residences []store.Residence
	path := fmt.Sprintf("/ResidentialAccounts/%d/residences", accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &residences); err != nil {
		return nil, err
	}
	return residences, nil
}

// GetWhems fetches the WHEM hubs of a residence.
func (c *Client) GetWhems(ctx context.Context, residenceID int) ([]store.Whem, error) {
	var whems []store.Whem
	path := fmt.Sprintf("/Residences/%d/iotWhems", residenceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &whems); err != nil {
		return nil, err
	}
	return whems, nil
}

// GetWhem refreshes a single WHEM hub.
func (c *Client) GetWhem(ctx context.Context, whemID string) (*store.Whem, error) {
	var whem store.Whem
	if err := c.do(ctx, http.MethodGet, "/IotWhems/"+whemID, nil, &whem); err != nil {
		return nil, err
	}
	return &whem, nil
}

// GetWhemBreakers fetches the breakers paired to a WHEM hub.
func (c *Client) GetWhemBreakers(ctx context.Context, whemID string) ([]store.Breaker, error) {
	var breakers []store.Breaker
	path := "/IotWhems/" + whemID + "/residentialBreakers"
	if err := c.do(ctx, http.MethodGet, path, nil, &breakers); err != nil {
		return nil, err
	}
	return breakers, nil
}

// GetCts fetches the CT channels of a WHEM hub.
func (c *Client) GetCts(ctx context.Context, whemID string) ([]store.Ct, error) {
	var cts []store.Ct
	path := "/IotWhems/" + whemID + "/iotCts"
	if err := c.do(ctx, http.MethodGet, path, nil, &cts); err != nil {
		return nil, err
	}
	return cts, nil
}

// GetPanels fetches the DAU panels of a residence.
func (c *Client) GetPanels(ctx context.Context, residenceID int) ([]store.Panel, error) {
	var panels []store.Panel
	path := fmt.Sprintf("/Residences/%d/residentialBreakerPanels", residenceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &panels); err != nil {
		return nil, err
	}
	return panels, nil
}

// GetPanel refreshes a single DAU panel.
func (c *Client) GetPanel(ctx context.Context, panelID string) (*store.Panel, error) {
	var panel store.Panel
	if err := c.do(ctx, http.MethodGet, "/ResidentialBreakerPanels/"+panelID, nil, &panel); err != nil {
		return nil, err
	}
	return &panel, nil
}

// GetPanelBreakers fetches the breakers wired to a DAU panel.
func (c *Client) GetPanelBreakers(ctx context.Context, panelID string) ([]store.Breaker, error) {
	var breakers []store.Breaker
	path := "/ResidentialBreakerPanels/" + panelID + "/residentialBreakers"
	if err := c.do(ctx, http.MethodGet, path, nil, &breakers); err != nil {
		return nil, err
	}
	return breakers, nil
}

// SetWhemBandwidth sets a WHEM's bandwidth mode (0 quiet, 1 streaming,
// 2 settled). This is a control-plane call with a data-plane side effect:
// the mode decides whether later energy reads are lifetime totals or period
// deltas, and the change needs real time to take effect. Callers that read
// energy next must wait the configured settle delay.
func (c *Client) SetWhemBandwidth(ctx context.Context, whemID string, mode int) error {
	body := map[string]any{"bandwidth": mode}
	return c.do(ctx, http.MethodPut, "/IotWhems/"+whemID, body, nil)
}

// SetPanelStreaming enables or disables a DAU panel's streaming mode.
// Same settle caveat as SetWhemBandwidth.
func (c *Client) SetPanelStreaming(ctx context.Context, panelID string, enabled bool) error {
	body := map[string]any{"streaming": enabled}
	return c.do(ctx, http.MethodPut, "/ResidentialBreakerPanels/"+panelID, body, nil)
}

// SetBreakerRemote issues a remote on/off command to a breaker.
func (c *Client) SetBreakerRemote(ctx context.Context, breakerID string, on bool) error {
	state := store.RemoteStateOff
	if on {
		state = store.RemoteStateOn
	}
	body := map[string]any{"remoteState": state}
	return c.do(ctx, http.MethodPut, "/ResidentialBreakers/"+breakerID, body, nil)
}

// TripBreaker remotely trips a breaker.
func (c *Client) TripBreaker(ctx context.Context, breakerID string) error {
	return c.do(ctx, http.MethodPost, "/ResidentialBreakers/"+breakerID+"/trip", nil, nil)
}

// IdentifyBreaker blinks a breaker's locator LED.
func (c *Client) IdentifyBreaker(ctx context.Context, breakerID string) error {
	return c.do(ctx, http.MethodPost, "/ResidentialBreakers/"+breakerID+"/identify", nil, nil)
}
