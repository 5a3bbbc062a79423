package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpalmerr/slotbox"
	"github.com/jpalmerr/slotbox/internal/server"
)

const (
	defaultTimeout = 5 * time.Second

	// maxResponseBodySize bounds any response; messages are far smaller.
	maxResponseBodySize = 1 << 20 // 1MB

	// connection pooling limits; a caller talks to exactly one server
	defaultMaxIdleConns    = 4
	defaultIdleConnTimeout = 30 * time.Second

	// unixBaseURL is a placeholder host; the dialer ignores it for unix sockets.
	unixBaseURL = "http://slotbox"
)

// Option configures a [Client].
type Option func(*Client)

// WithTimeout sets the per-request timeout. Defaults to 5 seconds.
// Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client talks to one endpoint of a slotbox server.
//
// Client uses per-request timeouts via context rather than a global timeout.
// It is safe for concurrent use; each [Handle] it opens is not.
type Client struct {
	endpoint   Endpoint
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a [Client] for ep. No connection is made until [Client.Open].
func New(ep Endpoint, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConns,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
	baseURL := "http://" + ep.Address
	if ep.Network == "unix" {
		baseURL = unixBaseURL
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", ep.Address)
		}
	}

	c := &Client{
		endpoint: ep,
		baseURL:  baseURL,
		timeout:  defaultTimeout,
		// no default timeout - we use per-request timeouts via context
		httpClient: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint this client addresses.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Close closes all idle connections in the client's connection pool. Safe to
// call multiple times; the client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// Open opens a new unbound handle on the client's endpoint.
func (c *Client) Open(ctx context.Context) (*Handle, error) {
	path := fmt.Sprintf("/v1/endpoints/%d/sessions", c.endpoint.ID)
	body, err := c.do(ctx, http.MethodPost, path, nil, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.endpoint, err)
	}

	var resp server.OpenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("open %s: %w: decoding response: %v", c.endpoint, slotbox.ErrIOFailure, err)
	}
	return &Handle{client: c, id: resp.Session}, nil
}

// Handle is one open session on a slotbox server. It is not safe for
// concurrent use.
type Handle struct {
	client *Client
	id     string
	closed bool
}

// ID returns the server-side session identifier.
func (h *Handle) ID() string { return h.id }

// SelectChannel binds the handle to ch. Channel 0 is rejected locally with
// [slotbox.ErrInvalidArgument] without contacting the server.
func (h *Handle) SelectChannel(ctx context.Context, ch slotbox.ChannelID) error {
	if ch == 0 {
		return fmt.Errorf("select channel: %w: channel 0 is reserved", slotbox.ErrInvalidArgument)
	}
	payload, err := json.Marshal(server.BindRequest{Channel: ch})
	if err != nil {
		return fmt.Errorf("select channel %d: %w", ch, err)
	}
	if _, err := h.client.do(ctx, http.MethodPut, h.path("/channel"), payload, http.StatusNoContent); err != nil {
		return fmt.Errorf("select channel %d: %w", ch, err)
	}
	return nil
}

// Send writes msg as the channel's message and returns the number of bytes
// stored.
func (h *Handle) Send(ctx context.Context, msg []byte) (int, error) {
	if msg == nil {
		msg = []byte{}
	}
	body, err := h.client.do(ctx, http.MethodPost, h.path("/message"), msg, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}

	var resp server.WriteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("send: %w: decoding response: %v", slotbox.ErrIOFailure, err)
	}
	return resp.Written, nil
}

// Receive reads the channel's message. capacity is the largest message the
// caller accepts; a longer stored message fails with
// [slotbox.ErrBufferTooSmall].
func (h *Handle) Receive(ctx context.Context, capacity int) ([]byte, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("receive: %w: negative capacity", slotbox.ErrInvalidArgument)
	}
	path := h.path("/message") + "?capacity=" + strconv.Itoa(capacity)
	body, err := h.client.do(ctx, http.MethodGet, path, nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if len(body) > capacity {
		return nil, fmt.Errorf("receive: %w: server returned %d bytes for capacity %d",
			slotbox.ErrIOFailure, len(body), capacity)
	}
	return body, nil
}

// Close releases the handle on the server. Once the server has confirmed,
// calling Close again is a no-op; after a failed attempt Close may be retried.
func (h *Handle) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	_, err := h.client.do(ctx, http.MethodDelete, h.path(""), nil, http.StatusNoContent)
	var remote *RemoteError
	switch {
	case err == nil:
	case errors.As(err, &remote) && remote.Code == server.CodeNoSession:
		// already gone on the server, for example reaped while idle
	default:
		return fmt.Errorf("close: %w", err)
	}
	h.closed = true
	return nil
}

func (h *Handle) path(suffix string) string {
	return "/v1/sessions/" + url.PathEscape(h.id) + suffix
}

// do performs one request and returns the response body if the status is
// want. Any other status is decoded into a sentinel-wrapping error.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, want int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", slotbox.ErrIOFailure, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", slotbox.ErrIOFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", slotbox.ErrIOFailure, err)
	}

	if resp.StatusCode != want {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

// decodeError rebuilds the sentinel error carried by a failed response.
func decodeError(status int, body []byte) error {
	var er server.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Code == "" {
		return fmt.Errorf("%w: unexpected status %d", slotbox.ErrIOFailure, status)
	}

	remote := &RemoteError{Status: status, Code: er.Code, Message: er.Error}
	switch {
	case er.Code == server.CodeNoSession:
		remote.err = slotbox.ErrInvalidState
	case slotbox.ErrorForCode(er.Code) != nil:
		remote.err = slotbox.ErrorForCode(er.Code)
	default:
		remote.err = errors.New(er.Code)
	}
	return remote
}

// RemoteError is a failure reported by the server. It unwraps to the
// matching slotbox sentinel; an unknown handle unwraps to
// [slotbox.ErrInvalidState].
type RemoteError struct {
	Status  int
	Code    string
	Message string
	err     error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.err }
