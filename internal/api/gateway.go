// Package api is the only place that talks to the exam backend over the network.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/tidwall/gjson"

	"github.com/and161185/exam-client/internal/errs"
)

// TokenSource yields the persisted credential. It is read on every call.
type TokenSource interface {
	Load() (string, error)
}

// Gateway wraps every outbound call: headers, bearer credential, decoding and error normalization.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	observer   Observer
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithObserver sets the call observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// NewGateway builds a gateway against baseURL. tokens may be nil for anonymous use.
func NewGateway(baseURL string, tokens TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
		observer:   nopObserver{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// BaseURL returns the resolved base URL.
func (g *Gateway) BaseURL() string { return g.baseURL }

type callOptions struct {
	method      string
	body        io.Reader
	jsonBody    any
	contentType string
	headers     http.Header
}

// CallOption customizes a single call.
type CallOption func(*callOptions)

// WithMethod sets the HTTP method (GET by default).
func WithMethod(m string) CallOption { return func(o *callOptions) { o.method = m } }

// WithJSON serializes v as the request body.
func WithJSON(v any) CallOption { return func(o *callOptions) { o.jsonBody = v } }

// WithMultipart sends a pre-built multipart payload as is.
func WithMultipart(body io.Reader, contentType string) CallOption {
	return func(o *callOptions) {
		o.body = body
		o.contentType = contentType
	}
}

// WithHeader overrides a request header.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) { o.headers.Set(key, value) }
}

// Call performs the request and returns the raw JSON body of a successful response.
// Failures are *errs.RequestError (backend answered) or *errs.ConnectivityError (it did not).
func (g *Gateway) Call(ctx context.Context, path string, opts ...CallOption) (json.RawMessage, error) {
	co := callOptions{method: http.MethodGet, headers: http.Header{}}
	for _, o := range opts {
		o(&co)
	}

	reqID := newRequestID()
	start := g.now()
	status := 0
	raw, err := g.do(ctx, path, reqID, &co, &status)
	g.observe(CallEvent{
		RequestID: reqID,
		Method:    co.method,
		Path:      path,
		Status:    status,
		Duration:  g.now().Sub(start),
		Err:       err,
	})
	return raw, err
}

// Do calls path and decodes a successful response into out (may be nil).
func (g *Gateway) Do(ctx context.Context, path string, out any, opts ...CallOption) error {
	raw, err := g.Call(ctx, path, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (g *Gateway) do(ctx context.Context, path, reqID string, co *callOptions, status *int) (json.RawMessage, error) {
	body := co.body
	if co.jsonBody != nil {
		encoded, err := json.Marshal(co.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, co.method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if co.contentType != "" {
		req.Header.Set("Content-Type", co.contentType)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if g.tokens != nil {
		if tok, err := g.tokens.Load(); err == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, vs := range co.headers {
		req.Header[k] = vs
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &errs.ConnectivityError{Err: err}
	}
	defer resp.Body.Close()
	*status = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ConnectivityError{Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &errs.RequestError{Status: resp.StatusCode, Message: errorMessage(resp, data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode %s: response is not JSON", path)
	}
	return json.RawMessage(data), nil
}

// errorMessage takes the message from a structured error body, else builds it from the status line.
func errorMessage(resp *http.Response, data []byte) string {
	if gjson.ValidBytes(data) {
		for _, field := range []string{"error", "message"} {
			if v := gjson.GetBytes(data, field); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				return v.String()
			}
		}
	}
	text := http.StatusText(resp.StatusCode)
	if text == "" {
		text = resp.Status
	}
	return "request failed: " + text
}

func (g *Gateway) observe(ev CallEvent) {
	defer func() { _ = recover() }()
	g.observer.ObserveCall(ev)
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

// IsConnectivity reports whether err means the backend could not be reached.
func IsConnectivity(err error) bool { return errors.Is(err, errs.ErrConnectivity) }
