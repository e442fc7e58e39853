package leviton

import "net/http"

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint. Used against regional clouds
// and test servers.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithSocketURL overrides the push-channel endpoint.
func WithSocketURL(url string) Option {
	return func(c *Client) { c.socketURL = url }
}

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger to the client.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}
