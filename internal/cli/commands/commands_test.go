package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/querypipe/internal/cli/config"
	clitest "github.com/leapstack-labs/querypipe/internal/cli/testutil"
	pipecfg "github.com/leapstack-labs/querypipe/internal/config"
	"github.com/leapstack-labs/querypipe/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	_ "github.com/leapstack-labs/querypipe/pkg/backends/sqlite" // register sqlite3
)

type cmdResult struct {
	Stdout string
	Stderr string
	Err    error
}

// execute runs cmd with the pipeline document at file, the way the root
// command would after loading CLI settings.
func execute(t *testing.T, cmd *cobra.Command, file, stdin string, args ...string) cmdResult {
	t.Helper()

	cfg := &config.Config{File: file, LogFormat: config.LogFormatText}
	ctx := config.NewContext(context.Background(), cfg, testutil.NewTestLogger(t))

	// The root command sets these; errors are returned, not printed.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return cmdResult{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRunCommand(), "run", []string{"initial-data", "output", "dump-context", "watch"}},
		{NewExecCommand(), "exec [SQL]", []string{"adapter", "input", "format"}},
		{NewPlanCommand(), "plan", []string{"format"}},
		{NewCheckCommand(), "check", []string{"timeout", "concurrency"}},
		{NewRenderCommand(), "render <step-index|output>", []string{"initial-data", "format"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}

	assert.Equal(t, "o", NewRunCommand().Flags().Lookup("output").Shorthand)
}

func TestRun_PrintsOutput(t *testing.T) {
	p := clitest.SetupTestProject(t)

	res := execute(t, NewRunCommand(), p.File, "")
	require.NoError(t, res.Err)

	assert.True(t, strings.HasPrefix(res.Stdout, "Users\n"), "got %q", res.Stdout)
	assert.Contains(t, res.Stdout, "- Alice")
	assert.Contains(t, res.Stdout, "- Bob")
	assert.Contains(t, res.Stdout, "orders: 2")
	assert.Empty(t, res.Stderr)
}

func TestRun_OutputFileCreatesDirectories(t *testing.T) {
	p := clitest.SetupTestProject(t)
	out := filepath.Join(p.Dir, "reports", "daily", "users.md")

	res := execute(t, NewRunCommand(), p.File, "", "-o", out)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Stdout)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "- Alice")
	assert.False(t, strings.HasSuffix(string(content), "\n"), "output is trimmed")
}

func TestRun_InitialData(t *testing.T) {
	p := clitest.SetupTestProjectWith(t, `adapter_settings:
  db1: {adapter: sqlite3, database: %s}
queries:
  - table: picked
    adapter: db1
    query: "SELECT name FROM users WHERE id = {{ user_id }}"
output:
  template: "{{ region }}: {{ picked.name }}"
`)

	res := execute(t, NewRunCommand(), p.File, "", "--initial-data", "user_id=2, region=eu")
	require.NoError(t, res.Err)
	assert.Equal(t, "eu: Bob\n", res.Stdout)

	res = execute(t, NewRunCommand(), p.File, "", "--initial-data", "user_id")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "key1=value1,key2=value2")
}

func TestRun_DumpContext(t *testing.T) {
	p := clitest.SetupTestProject(t)

	t.Run("json", func(t *testing.T) {
		res := execute(t, NewRunCommand(), p.File, "", "--dump-context", "json")
		require.NoError(t, res.Err)

		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(res.Stderr), &data))
		db1, ok := data["db1"].(map[string]any)
		require.True(t, ok, "db1 should be a mapping")
		assert.Len(t, db1["users"], 2)
		assert.NotContains(t, data, "template_context")
	})

	t.Run("yaml", func(t *testing.T) {
		res := execute(t, NewRunCommand(), p.File, "", "--dump-context", "yaml")
		require.NoError(t, res.Err)

		var data map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(res.Stderr), &data))
		assert.Contains(t, data, "db1")
	})

	t.Run("invalid", func(t *testing.T) {
		res := execute(t, NewRunCommand(), p.File, "", "--dump-context", "xml")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "--dump-context")
	})
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		contains string
	}{
		{
			name:     "missing sections",
			pipeline: "adapter_settings: {}\n# %s\n",
			contains: "output, queries",
		},
		{
			name: "query fails",
			pipeline: `adapter_settings:
  db1: {adapter: sqlite3, database: %s}
queries:
  - {table: t, adapter: db1, query: SELECT * FROM missing}
output: {template: x}
`,
			contains: "query 0 (t on adapter db1)",
		},
		{
			name: "unknown kind",
			pipeline: `adapter_settings:
  db1: {adapter: oracle, database: %s}
queries:
  - {table: t, adapter: db1, query: SELECT 1}
output: {template: x}
`,
			contains: "oracle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := clitest.SetupTestProjectWith(t, tt.pipeline)
			res := execute(t, NewRunCommand(), p.File, "")
			require.Error(t, res.Err)
			assert.Contains(t, res.Err.Error(), tt.contains)
			assert.Empty(t, res.Stdout)
		})
	}

	res := execute(t, NewRunCommand(), filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "error reading config file")
}

func TestExec_Formats(t *testing.T) {
	p := clitest.SetupTestProject(t)
	query := "SELECT id, name FROM users ORDER BY id"

	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "table",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "Alice")
				assert.Contains(t, out, "(2 rows)")
				clitest.AssertNoANSI(t, out)
			},
		},
		{
			format: "csv",
			check: func(t *testing.T, out string) {
				assert.Equal(t, "id,name\n1,Alice\n2,Bob\n", out)
			},
		},
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var rows []map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &rows))
				require.Len(t, rows, 2)
				assert.Equal(t, "Bob", rows[1]["name"])
			},
		},
		{
			format: "md",
			check: func(t *testing.T, out string) {
				lower := strings.ToLower(out)
				assert.Contains(t, lower, "| id | name |")
				assert.Contains(t, lower, "| 2 | bob |")
			},
		},
		{
			format: "yaml",
			check: func(t *testing.T, out string) {
				var rows []map[string]any
				require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
				assert.Equal(t, "Alice", rows[0]["name"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			res := execute(t, NewExecCommand(), p.File, "", "--adapter", "db1", "--format", tt.format, query)
			require.NoError(t, res.Err)
			tt.check(t, res.Stdout)
		})
	}
}

func TestExec_QuerySources(t *testing.T) {
	p := clitest.SetupTestProject(t)

	t.Run("stdin", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "SELECT name FROM users WHERE id = 2", "-a", "db1", "--format", "csv")
		require.NoError(t, res.Err)
		assert.Equal(t, "name\nBob\n", res.Stdout)
	})

	t.Run("input file with several statements", func(t *testing.T) {
		input := p.WriteFile(t, "q.sql", "SELECT name FROM users WHERE id = 1;\nSELECT name FROM users WHERE id = 2;\n")
		res := execute(t, NewExecCommand(), p.File, "", "-a", "db1", "-i", input, "--format", "csv")
		require.NoError(t, res.Err)
		assert.Equal(t, "name\nAlice\nBob\n", res.Stdout)
	})

	t.Run("empty result", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "", "-a", "db1", "SELECT * FROM users WHERE id = 99")
		require.NoError(t, res.Err)
		assert.Equal(t, "(0 rows)\n", res.Stdout)
	})

	t.Run("no query", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "", "-a", "db1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "no query given")
	})

	t.Run("unknown adapter", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "", "-a", "nope", "SELECT 1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), `unknown adapter "nope"`)
	})

	t.Run("adapter required", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "", "SELECT 1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "adapter")
	})

	t.Run("unknown format", func(t *testing.T) {
		res := execute(t, NewExecCommand(), p.File, "", "-a", "db1", "--format", "xml", "SELECT 1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "unknown format")
	})
}

func TestPlan(t *testing.T) {
	p := clitest.SetupTestProject(t)

	t.Run("table", func(t *testing.T) {
		res := execute(t, NewPlanCommand(), p.File, "")
		require.NoError(t, res.Err)
		assert.Contains(t, res.Stdout, "Adapters")
		assert.Contains(t, res.Stdout, "sqlite3")
		assert.Contains(t, res.Stdout, "db1.orders")
		assert.Contains(t, res.Stdout, "template_context keys: title")
	})

	t.Run("json", func(t *testing.T) {
		res := execute(t, NewPlanCommand(), p.File, "", "--format", "json")
		require.NoError(t, res.Err)

		var plan PlanOutput
		require.NoError(t, json.Unmarshal([]byte(res.Stdout), &plan))
		require.Len(t, plan.Adapters, 1)
		assert.Equal(t, PlanAdapter{Name: "db1", Kind: "sqlite3", Target: p.Database}, plan.Adapters[0])
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, "db1.users", plan.Steps[0].Table)
		assert.Equal(t, 1, plan.Steps[1].Index)
		assert.Equal(t, []string{"title"}, plan.Output.TemplateContext)
	})
}

func TestAdapterTarget(t *testing.T) {
	p := clitest.SetupTestProjectWith(t, `adapter_settings:
  api:
    adapter: http
    base_url: https://api.example.com/
    base_path: /v1/query
  pg:
    adapter: postgres
    host: db.internal
    port: 5432
    database: shop
    user: app
    password: secret
  db1: {adapter: sqlite3, database: %s}
queries:
  - {table: t, adapter: db1, query: SELECT 1}
output: {template: x}
`)

	res := execute(t, NewPlanCommand(), p.File, "", "--format", "json")
	require.NoError(t, res.Err)
	assert.NotContains(t, res.Stdout, "secret")

	var plan PlanOutput
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &plan))
	targets := map[string]string{}
	for _, a := range plan.Adapters {
		targets[a.Name] = a.Target
	}
	assert.Equal(t, "https://api.example.com/v1/query", targets["api"])
	assert.Equal(t, "db.internal:5432/shop", targets["pg"])
}

func TestCheck(t *testing.T) {
	t.Run("all reachable", func(t *testing.T) {
		p := clitest.SetupTestProject(t)
		res := execute(t, NewCheckCommand(), p.File, "")
		require.NoError(t, res.Err)
		assert.Contains(t, res.Stdout, "db1")
		assert.Contains(t, res.Stdout, "Ok")
	})

	t.Run("one failing", func(t *testing.T) {
		p := clitest.SetupTestProjectWith(t, `adapter_settings:
  good: {adapter: sqlite3, database: %s}
  bad: {adapter: oracle, database: x}
queries:
  - {table: t, adapter: good, query: SELECT 1}
output: {template: x}
`)
		res := execute(t, NewCheckCommand(), p.File, "", "--concurrency", "1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "1 of 2 adapters failed")
		assert.Contains(t, res.Err.Error(), "bad:")
		assert.Contains(t, res.Stdout, "Failed")
		assert.Contains(t, res.Stdout, "Ok")
	})
}

func TestCheckAdapters_Results(t *testing.T) {
	p := clitest.SetupTestProjectWith(t, `adapter_settings:
  b_db: {adapter: sqlite3, database: %s}
  a_bad: {adapter: oracle, database: x}
queries:
  - {table: t, adapter: b_db, query: SELECT 1}
output: {template: x}
`)
	doc, err := pipecfg.Load(p.File)
	require.NoError(t, err)

	results := checkAdapters(context.Background(), doc, &CheckOptions{Timeout: time.Second, Concurrency: 2}, testutil.NewTestLogger(t))
	require.Len(t, results, 2)

	assert.Equal(t, "a_bad", results[0].Adapter)
	assert.Equal(t, statusFailed, results[0].Status)
	assert.Error(t, results[0].Err)

	assert.Equal(t, "b_db", results[1].Adapter)
	assert.Equal(t, "sqlite3", results[1].Kind)
	assert.Equal(t, statusOK, results[1].Status)
	assert.NoError(t, results[1].Err)
	assert.Positive(t, results[1].Duration)
}

func TestRender(t *testing.T) {
	p := clitest.SetupTestProjectWith(t, `adapter_settings:
  db1: {adapter: sqlite3, database: %s}
queries:
  - table: t
    adapter: db1
    query: "DELETE FROM tmp WHERE r = '{{ region }}'; SELECT * FROM users WHERE region = '{{ region }}'"
output:
  template: "{{ template_context.title }} for {{ region }}"
  template_context: {title: Report}
`)

	t.Run("step", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "0", "--initial-data", "region=eu")
		require.NoError(t, res.Err)
		assert.Equal(t, "DELETE FROM tmp WHERE r = 'eu';\nSELECT * FROM users WHERE region = 'eu';\n", res.Stdout)
	})

	t.Run("step json", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "0", "--initial-data", "region=eu", "--format", "json")
		require.NoError(t, res.Err)

		var out RenderOutput
		require.NoError(t, json.Unmarshal([]byte(res.Stdout), &out))
		assert.Equal(t, "t", out.Table)
		assert.Equal(t, "db1", out.Adapter)
		assert.Len(t, out.Statements, 2)
	})

	t.Run("output", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "output", "--initial-data", "region=eu")
		require.NoError(t, res.Err)
		assert.Equal(t, "Report for eu\n", res.Stdout)
	})

	t.Run("undefined variable", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "0")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "region")
	})

	t.Run("out of range", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "5")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "out of range")
	})

	t.Run("not an index", func(t *testing.T) {
		res := execute(t, NewRenderCommand(), p.File, "", "first")
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "invalid step")
	})
}

func TestParseInitialData(t *testing.T) {
	data, err := parseInitialData("")
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = parseInitialData("a=1, b = two")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "two"}, data)

	_, err = parseInitialData("a=1=2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--initial-data")
}
