// Package client sends checkout protocol requests to the merchant under
// test and records each call as a schema.Exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Use-Tusk/checkout-conformance/internal/schema"
)

const (
	HeaderAuthorization  = "Authorization"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "Request-Id"
	HeaderAPIVersion     = "API-Version"
	HeaderTimestamp      = "Timestamp"
	HeaderAcceptLanguage = "Accept-Language"
)

const (
	DefaultAPIVersion     = "2025-09-29"
	DefaultAcceptLanguage = "en-US"
	DefaultTimeout        = 30 * time.Second
)

// ErrUnreachable is wrapped by errors caused by the target not answering at
// the transport level.
var ErrUnreachable = errors.New("target unreachable")

var placeholder = regexp.MustCompile(`\{[^}/]+\}`)

type Client struct {
	baseURL        string
	apiKey         string
	apiVersion     string
	acceptLanguage string
	http           *http.Client
	now            func() time.Time
	newID          func() string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

func WithAcceptLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.acceptLanguage = lang
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client, e.g. with an
// httptest.Server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiVersion:     DefaultAPIVersion,
		acceptLanguage: DefaultAcceptLanguage,
		http:           &http.Client{Timeout: DefaultTimeout},
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticated reports whether requests carry an API key.
func (c *Client) Authenticated() bool {
	return c.apiKey != ""
}

// NewKey returns a fresh idempotency key.
func (c *Client) NewKey() string {
	return c.newID()
}

// Request describes one protocol call.
type Request struct {
	Method string
	// Template is the path as written in the interface description, e.g.
	// "/checkout_sessions/{checkout_session_id}".
	Template string
	Params   map[string]string
	// Body is marshaled as JSON unless it is already a []byte or
	// json.RawMessage.
	Body any
	// IdempotencyKey is generated when empty.
	IdempotencyKey string
	// Header overrides the default headers. An empty value removes one.
	Header http.Header
}

// Response is the recorded result of a call.
type Response struct {
	Exchange       schema.Exchange
	URL            string
	RequestBody    []byte
	IdempotencyKey string
	RequestID      string
	Duration       time.Duration
}

// Header returns the first value of a response header.
func (r *Response) Header(name string) string {
	return r.Exchange.Headers.Get(name)
}

// Do sends req and reads the whole response. A non-2xx status is not an
// error; transport failures are and wrap ErrUnreachable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	path, err := Expand(req.Template, req.Params)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.newID()
	}
	requestID := c.newID()

	if c.apiKey != "" {
		httpReq.Header.Set(HeaderAuthorization, "Bearer "+c.apiKey)
	}
	httpReq.Header.Set(HeaderIdempotencyKey, key)
	httpReq.Header.Set(HeaderRequestID, requestID)
	httpReq.Header.Set(HeaderAPIVersion, c.apiVersion)
	httpReq.Header.Set(HeaderTimestamp, c.now().UTC().Format(time.RFC3339))
	httpReq.Header.Set(HeaderAcceptLanguage, c.acceptLanguage)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, values := range req.Header {
		if len(values) == 0 || (len(values) == 1 && values[0] == "") {
			httpReq.Header.Del(name)
			continue
		}
		httpReq.Header[http.CanonicalHeaderKey(name)] = values
	}

	slog.Debug("Sending request", "method", req.Method, "url", httpReq.URL.String(), "requestID", requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, req.Method, httpReq.URL.Redacted(), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	duration := time.Since(start)

	slog.Debug("Received response", "method", req.Method, "url", httpReq.URL.String(), "status", resp.StatusCode, "duration", duration)

	return &Response{
		Exchange: schema.Exchange{
			Method:  strings.ToUpper(req.Method),
			Path:    req.Template,
			Status:  resp.StatusCode,
			Headers: resp.Header.Clone(),
			Body:    respBody,
		},
		URL:            httpReq.URL.String(),
		RequestBody:    body,
		IdempotencyKey: httpReq.Header.Get(HeaderIdempotencyKey),
		RequestID:      requestID,
		Duration:       duration,
	}, nil
}

// Probe checks that the target answers HTTP at all. Any status counts.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		Template: "/checkout_sessions/{checkout_session_id}",
		Params:   map[string]string{"checkout_session_id": "conform_probe"},
	})
	return err
}

// Expand substitutes {name} segments of template with escaped params.
func Expand(template string, params map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("path %s: missing parameter(s) %s", template, strings.Join(missing, ", "))
	}
	return out, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		out, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return out, nil
	}
}
