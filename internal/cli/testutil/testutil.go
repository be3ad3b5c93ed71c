// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	// sqlite driver for fixture databases.
	_ "modernc.org/sqlite"
)

// Project is a temporary pipeline project: a SQLite database and a pipeline
// document that queries it.
type Project struct {
	Dir      string
	Database string
	File     string
}

// DefaultPipeline is the pipeline document written by SetupTestProject.
// %s is replaced with the database path.
const DefaultPipeline = `adapter_settings:
  db1:
    adapter: sqlite3
    database: %s
queries:
  - table: db1.users
    adapter: db1
    query: SELECT id, name FROM users ORDER BY id
  - table: db1.orders
    adapter: db1
    query: |
      SELECT count(*) AS n FROM orders
      WHERE user_id = {{ db1.users[0].id }}
output:
  template: |
    {{ template_context.title }}
    {* for u in db1.users: *}
    - {{ u.name }}
    {* endfor *}
    orders: {{ db1.orders.n }}
  template_context:
    title: Users
`

// SetupTestProject creates a temporary project with a seeded database and
// the default pipeline document.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()
	return SetupTestProjectWith(t, DefaultPipeline)
}

// SetupTestProjectWith creates a temporary project whose pipeline document
// is pipeline with %s replaced by the database path.
func SetupTestProjectWith(t *testing.T, pipeline string) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:      dir,
		Database: filepath.Join(dir, "shop.db"),
		File:     filepath.Join(dir, "querypipe.yaml"),
	}

	db, err := sql.Open("sqlite", p.Database)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
INSERT INTO users (id, name) VALUES (1, 'Alice'), (2, 'Bob');
CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, total REAL);
INSERT INTO orders (user_id, total) VALUES (1, 10.5), (1, 3.0), (2, 7.25);
`)
	require.NoError(t, err, "failed to seed fixture database")

	p.WriteFile(t, "querypipe.yaml", fmt.Sprintf(pipeline, p.Database))
	return p
}

// WriteFile writes content to name inside the project directory and returns its path.
func (p *Project) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.Dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
