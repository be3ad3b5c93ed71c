package duckdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/querypipe/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupStatements(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{
			name:   "empty",
			params: Params{},
			want:   nil,
		},
		{
			name:   "extensions",
			params: Params{Extensions: []string{"json", "httpfs"}},
			want:   []string{"INSTALL json", "LOAD json", "INSTALL httpfs", "LOAD httpfs"},
		},
		{
			name:   "settings sorted and quoted",
			params: Params{Settings: map[string]string{"threads": "4", "memory_limit": "4GB"}},
			want:   []string{"SET memory_limit = '4GB'", "SET threads = '4'"},
		},
		{
			name: "secret",
			params: Params{Secrets: []SecretConfig{
				{Type: "s3", Provider: "credential_chain", Region: "us-west-2"},
			}},
			want: []string{"CREATE OR REPLACE SECRET (TYPE s3, PROVIDER credential_chain, REGION 'us-west-2')"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.setupStatements())
		})
	}
}

func TestDecodeParams(t *testing.T) {
	s := backend.Settings{Params: map[string]any{
		"extensions": []any{"json"},
		"settings":   map[string]any{"threads": 2},
	}}
	var p Params
	require.NoError(t, s.DecodeParams(&p))
	assert.Equal(t, []string{"json"}, p.Extensions)
	assert.Equal(t, map[string]string{"threads": "2"}, p.Settings)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.duckdb")

	b, err := backend.New(ctx, backend.Settings{Name: "warehouse", Kind: "duckdb", Database: path}, nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	_, err = b.Query(ctx, "CREATE TABLE orders AS SELECT * FROM (VALUES (1, 'open'), (2, 'closed')) t(id, status)")
	require.NoError(t, err)

	rows, err := b.Query(ctx, "SELECT id, status FROM orders ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "open", rows[0]["status"])
	assert.EqualValues(t, 2, rows[1]["id"])
}

func TestQuery_Error(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, backend.Settings{Name: "warehouse", Kind: "duckdb", Database: ":memory:"}, nil)
	require.NoError(t, err)

	_, err = b.Query(ctx, "SELECT * FROM nowhere")
	var qerr *backend.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "duckdb", qerr.Kind)
}
