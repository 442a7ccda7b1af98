// Package remote is the HTTP client of the orgview document API.
package remote

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
	"time"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/models"
)

// Client fetches and submits documents over the REST API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchDocument loads the document at path.
func (c *Client) FetchDocument(ctx context.Context, path string) (*models.Document, error) {
	var doc models.Document
	if err := c.do(ctx, http.MethodGet, filesPath(path), nil, &doc); err != nil {
		return nil, fmt.Errorf("remote: fetch %s: %w", path, err)
	}
	return &doc, nil
}

// SubmitDocument replaces the frontmatter and body of the document at path
// and returns the document as stored by the server.
func (c *Client) SubmitDocument(ctx context.Context, path string, fm models.Frontmatter, body string) (*models.Document, error) {
	if fm == nil {
		fm = models.Frontmatter{}
	}
	payload := struct {
		Frontmatter models.Frontmatter `json:"frontmatter"`
		Body        string             `json:"body"`
	}{fm, body}

	var doc models.Document
	if err := c.do(ctx, http.MethodPut, filesPath(path), payload, &doc); err != nil {
		return nil, fmt.Errorf("remote: submit %s: %w", path, err)
	}
	return &doc, nil
}

// EventsURL returns the WebSocket change feed URL, carrying the token as a
// query parameter when one is configured.
func (c *Client) EventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Token returns the configured bearer token.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return apperr.Transport(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return apperr.Transport(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return statusError(resp.StatusCode, data)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// statusError maps a non-2xx response to the apperr taxonomy. A 409 is a
// transport failure that also matches ErrConflict.
func statusError(code int, data []byte) error {
	var er errorResponse
	_ = json.Unmarshal(data, &er)
	msg := er.Error
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch code {
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		fields := er.Fields
		if len(fields) == 0 {
			fields = map[string]string{"": msg}
		}
		return &apperr.ValidationError{Fields: fields}
	case http.StatusConflict:
		return apperr.Transport(fmt.Errorf("%w: %s", apperr.ErrConflict, msg))
	default:
		return apperr.Transport(&StatusError{Code: code, Message: msg})
	}
}

// StatusError is an unexpected HTTP status from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err carries an unexpected HTTP status equal to code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// filesPath builds /api/files/<path> with each segment escaped.
func filesPath(path string) string {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/api/files/" + strings.Join(segs, "/")
}
