package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/leapstack-labs/querypipe/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  map[string][]string
	body   map[string]any
	header nethttp.Header
}

func newServer(t *testing.T, status int, contentType, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c.method = r.Method
		c.path = r.URL.Path
		c.query = r.URL.Query()
		c.header = r.Header.Clone()
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &c.body)
			}
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newBackend(t *testing.T, s backend.Settings) backend.Backend {
	t.Helper()
	s.Kind = "http"
	if s.Name == "" {
		s.Name = "api"
	}
	b, err := backend.New(context.Background(), s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSelfRegistration(t *testing.T) {
	assert.True(t, backend.IsRegistered("http"))
}

func TestMissingSettings(t *testing.T) {
	_, err := backend.New(context.Background(), backend.Settings{Name: "api", Kind: "http"}, nil)

	var missing *backend.MissingSettingsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"base_url", "base_path"}, missing.Fields)
}

func TestURL(t *testing.T) {
	b := NewWithClient(backend.Settings{BaseURL: "http://x/", BasePath: "/api/v1/"}, nil, nil)
	assert.Equal(t, "http://x/api/v1/reports", b.URL("/reports"))
	assert.Equal(t, "http://x/api/v1/reports/daily", b.URL("reports/daily"))
}

func TestQuery_PostJSON(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `[{"id": 1, "name": "Ann"}, {"id": 2.5, "name": "Bob"}]`)

	b := newBackend(t, backend.Settings{
		BaseURL:     srv.URL + "/",
		BasePath:    "/api/",
		BasePayload: map[string]any{"token": "abc", "limit": 10},
		BaseHeaders: map[string]string{"X-Api-Key": "k"},
	})

	rows, err := b.Query(context.Background(), `{"endpoint": "/users", "payload": {"limit": 2}}`)
	require.NoError(t, err)

	assert.Equal(t, "POST", c.method)
	assert.Equal(t, "/api/users", c.path)
	assert.Equal(t, map[string]any{"token": "abc", "limit": float64(2)}, c.body)
	assert.Equal(t, "k", c.header.Get("X-Api-Key"))
	assert.Equal(t, "application/json", c.header.Get("Content-Type"))

	assert.Equal(t, []backend.Row{
		{"id": int64(1), "name": "Ann"},
		{"id": 2.5, "name": "Bob"},
	}, rows)
}

func TestQuery_GetQueryString(t *testing.T) {
	srv, c := newServer(t, 200, "application/json", `{"x": 1}`)

	b := newBackend(t, backend.Settings{
		BaseURL:     srv.URL,
		BasePath:    "v2",
		HTTPMethod:  "GET",
		BasePayload: map[string]any{"day": "mon", "team": "a"},
	})

	rows, err := b.Query(context.Background(), `{"endpoint": "stats", "payload": {"team": "b", "tags": ["x", "y"]}}`)
	require.NoError(t, err)

	assert.Equal(t, "GET", c.method)
	assert.Equal(t, "/v2/stats", c.path)
	assert.Equal(t, []string{"mon"}, c.query["day"])
	assert.Equal(t, []string{"b"}, c.query["team"])
	assert.Equal(t, []string{"x", "y"}, c.query["tags"])
	assert.Equal(t, []backend.Row{{"x": int64(1)}}, rows)
}

func TestQuery_CSV(t *testing.T) {
	tests := []struct {
		name        string
		basePayload map[string]any
		query       string
		response    string
		want        []backend.Row
	}{
		{
			name:     "csv flag in call payload",
			query:    `{"endpoint": "export", "payload": {"csv": 1}}`,
			response: "ID,Name\n1,Ann\n",
			want:     []backend.Row{{"id": "1", "name": "Ann"}},
		},
		{
			name:        "csv flag in base payload",
			basePayload: map[string]any{"csv": "true"},
			query:       `{"endpoint": "export"}`,
			response:    "A,B\n1,2\n\n3,4,5\n6\n",
			want: []backend.Row{
				{"a": "1", "b": "2"},
				{"a": "3", "b": "4"},
				{"a": "6"},
			},
		},
		{
			name:     "header only",
			query:    `{"endpoint": "export", "payload": {"csv": true}}`,
			response: "A,B\n",
			want:     []backend.Row{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, 200, "text/csv", tt.response)
			b := newBackend(t, backend.Settings{BaseURL: srv.URL, BasePath: "api", BasePayload: tt.basePayload})

			rows, err := b.Query(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestQuery_NonSuccessStatus(t *testing.T) {
	srv, _ := newServer(t, 503, "text/plain", "unavailable")
	b := newBackend(t, backend.Settings{BaseURL: srv.URL, BasePath: "api"})

	_, err := b.Query(context.Background(), `{"endpoint": "x"}`)
	require.Error(t, err)

	var qerr *backend.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 503, qerr.StatusCode)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestQuery_MalformedQuery(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls++
		w.WriteHeader(200)
	}))
	defer srv.Close()

	b := newBackend(t, backend.Settings{BaseURL: srv.URL, BasePath: "api"})

	for _, q := range []string{`not json`, `[1, 2]`, `{"payload": {}}`, `{"endpoint": ""}`} {
		_, err := b.Query(context.Background(), q)
		require.Error(t, err, q)
		assert.True(t, errors.Is(err, backend.ErrConfiguration), q)
	}
	assert.Equal(t, 0, calls)
}

func TestQuery_UnexpectedJSON(t *testing.T) {
	for _, body := range []string{`42`, `"text"`, `[1, 2]`, `[{"a": 1}, "b"]`} {
		srv, _ := newServer(t, 200, "application/json", body)
		b := newBackend(t, backend.Settings{BaseURL: srv.URL, BasePath: "api"})

		_, err := b.Query(context.Background(), `{"endpoint": "x"}`)
		var perr *backend.ResponseParseError
		require.ErrorAs(t, err, &perr, body)
		assert.Equal(t, "json", perr.Format)
	}
}

func TestQuery_TranscodesCharset(t *testing.T) {
	// "café" in ISO-8859-1
	srv, _ := newServer(t, 200, "application/json; charset=iso-8859-1", "{\"name\": \"caf\xe9\"}")
	b := newBackend(t, backend.Settings{BaseURL: srv.URL, BasePath: "api"})

	rows, err := b.Query(context.Background(), `{"endpoint": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, []backend.Row{{"name": "café"}}, rows)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(nil)
	var perr *backend.ResponseParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "csv", perr.Format)
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{1, int64(1), float64(1), true, "1", "true", "TRUE"} {
		assert.True(t, truthy(v), "%v", v)
	}
	for _, v := range []any{0, nil, false, "yes", "0", 2} {
		assert.False(t, truthy(v), "%v", v)
	}
}
