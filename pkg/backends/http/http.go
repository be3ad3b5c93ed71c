// Package http provides the HTTP backend for querypipe.
//
// Query text is a JSON object naming an endpoint below the adapter's base URL
// and path, plus an optional payload merged over the adapter's base payload:
//
//	{"endpoint": "reports/daily", "payload": {"day": "2024-01-01"}}
//
// GET requests send the payload as a query string, every other method as a
// JSON body. Responses are decoded as JSON unless the payload asks for CSV.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/querypipe/pkg/backend"
	"golang.org/x/net/html/charset"
)

// Request is the decoded form of an HTTP backend query.
type Request struct {
	Endpoint string         `mapstructure:"endpoint"`
	Payload  map[string]any `mapstructure:"payload"`
}

// Backend issues one HTTP request per query.
type Backend struct {
	name        string
	baseURL     string
	basePath    string
	method      string
	basePayload map[string]any
	baseHeaders map[string]string
	client      *nethttp.Client
	logger      *slog.Logger
}

// New creates an HTTP backend. It performs no network I/O.
func New(_ context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	return NewWithClient(s, nil, logger), nil
}

// NewWithClient creates an HTTP backend using client. A nil client gets a
// fresh one bounded by the adapter timeout.
func NewWithClient(s backend.Settings, client *nethttp.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = backend.DefaultHTTPTimeout
		}
		client = &nethttp.Client{Timeout: timeout}
	}

	method := strings.ToLower(s.HTTPMethod)
	if method == "" {
		method = "post"
	}

	return &Backend{
		name:        s.Name,
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		basePath:    strings.Trim(s.BasePath, "/"),
		method:      method,
		basePayload: s.BasePayload,
		baseHeaders: s.BaseHeaders,
		client:      client,
		logger:      logger,
	}
}

// ParseRequest decodes query text into a Request.
func ParseRequest(text string) (*Request, error) {
	var raw any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &backend.ConfigError{Msg: "invalid JSON query", Err: err}
	}
	obj, ok := normalizeJSON(raw).(map[string]any)
	if !ok {
		return nil, &backend.ConfigError{Msg: "query must be a JSON object"}
	}

	var req Request
	if err := mapstructure.Decode(obj, &req); err != nil {
		return nil, &backend.ConfigError{Msg: "invalid query", Err: err}
	}
	if req.Endpoint == "" {
		return nil, &backend.ConfigError{Msg: "query must contain 'endpoint' field"}
	}
	return &req, nil
}

// URL returns the full request URL for endpoint.
func (b *Backend) URL(endpoint string) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, b.basePath, strings.TrimLeft(endpoint, "/"))
}

// Query executes one HTTP request described by text.
func (b *Backend) Query(ctx context.Context, text string) ([]backend.Row, error) {
	req, err := ParseRequest(text)
	if err != nil {
		if cerr, ok := err.(*backend.ConfigError); ok {
			cerr.Adapter = b.name
		}
		return nil, err
	}

	payload := mergePayload(b.basePayload, req.Payload)
	httpReq, err := b.buildRequest(ctx, b.URL(req.Endpoint), payload)
	if err != nil {
		return nil, &backend.QueryError{Kind: string(backend.KindHTTP), Err: err}
	}

	b.logger.Debug("making request",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.String()))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.logger.Error("HTTP request failed", slog.String("error", err.Error()))
		return nil, &backend.QueryError{Kind: string(backend.KindHTTP), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return nil, &backend.QueryError{Kind: string(backend.KindHTTP), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &backend.QueryError{
			Kind:       string(backend.KindHTTP),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", httpReq.Method, httpReq.URL.Path, snippet(body)),
		}
	}

	if truthy(b.basePayload["csv"]) || truthy(req.Payload["csv"]) {
		return ParseCSV(body)
	}
	return ParseJSON(body)
}

// Ping validates the base URL without contacting the service.
func (b *Backend) Ping(context.Context) error {
	if _, err := url.Parse(b.baseURL); err != nil {
		return &backend.ConfigError{Adapter: b.name, Msg: "invalid base_url", Err: err}
	}
	return nil
}

// Close releases idle keep-alive connections.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *Backend) buildRequest(ctx context.Context, target string, payload map[string]any) (*nethttp.Request, error) {
	var (
		req *nethttp.Request
		err error
	)
	if b.method == "get" {
		req, err = nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.URL.RawQuery = encodeQuery(req.URL.Query(), payload)
	} else {
		data, merr := json.Marshal(payload)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", merr)
		}
		req, err = nethttp.NewRequestWithContext(ctx, strings.ToUpper(b.method), target, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range b.baseHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func encodeQuery(q url.Values, payload map[string]any) string {
	for k, v := range payload {
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			for _, item := range val {
				q.Add(k, fmt.Sprint(item))
			}
		default:
			q.Set(k, fmt.Sprint(val))
		}
	}
	return q.Encode()
}

// readBody reads the response body transcoded to UTF-8 according to its Content-Type.
func readBody(resp *nethttp.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if cr, err := charset.NewReader(resp.Body, ct); err == nil {
			r = cr
		}
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func mergePayload(base, call map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(call))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}
	return merged
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int:
		return val == 1
	case int64:
		return val == 1
	case float64:
		return val == 1
	case string:
		return val == "1" || strings.EqualFold(val, "true")
	default:
		return false
	}
}

func snippet(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func init() {
	backend.Register(backend.KindHTTP, []string{"base_url", "base_path"}, New)
}
