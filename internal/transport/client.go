package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
)

// SDKVersion is reported to the service in the pnsdk query parameter.
const SDKVersion = "PubNub-Go-Registrar/1.0.0"

// ErrMalformedResponse is returned when a 2xx body is not valid JSON.
var ErrMalformedResponse = errors.New("transport: malformed response body")

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: received status %d", e.StatusCode)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client executes endpoint requests against the configured origin.
type Client struct {
	baseURL        string
	authKey        string
	uuid           string
	requestTimeout time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

func NewClient(cfg config.PubNub, logger *slog.Logger) *Client {
	id := cfg.UUID
	if id == "" {
		id = "pn-" + uuid.NewString()
	}
	return &Client{
		baseURL:        cfg.BaseURL(),
		authKey:        cfg.AuthKey,
		uuid:           id,
		requestTimeout: orDefault(cfg.NonSubscribeRequestTimeout, config.DefaultNonSubscribeRequestTimeout),
		connectTimeout: orDefault(cfg.ConnectTimeout, config.DefaultConnectTimeout),
		logger:         logger,
		clients:        make(map[time.Duration]*http.Client),
	}
}

// UUID is the client identifier sent with every request.
func (c *Client) UUID() string {
	return c.uuid
}

func (c *Client) Execute(ctx context.Context, r *endpoint.Request) (*endpoint.Response, error) {
	query := url.Values{}
	for k, v := range r.Query {
		query[k] = append([]string(nil), v...)
	}
	query.Set("uuid", c.uuid)
	query.Set("pnsdk", SDKVersion)
	if r.AuthRequired && c.authKey != "" {
		query.Set("auth", c.authKey)
	}

	target := c.baseURL + r.Path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(r.RequestTimeout, c.requestTimeout))
	defer cancel()

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(orDefault(r.ConnectTimeout, c.connectTimeout)).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	c.logger.Debug("request completed",
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if !json.Valid(raw) {
		return nil, ErrMalformedResponse
	}

	return &endpoint.Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// httpClient returns a client whose dialer honours connectTimeout. Clients are
// shared per timeout value so connections get reused.
func (c *Client) httpClient(connectTimeout time.Duration) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[connectTimeout]; ok {
		return cl
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	cl := &http.Client{Transport: tr}
	c.clients[connectTimeout] = cl
	return cl
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
