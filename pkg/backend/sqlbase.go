package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ScanRows materializes every row of rows as a Row keyed by column name.
// []byte values are converted to strings; integer and floating point columns
// delivered as text by the driver are parsed back into numbers.
// The caller still owns rows and must close it.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		types = nil
	}

	results := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			var dbType string
			if i < len(types) && types[i] != nil {
				dbType = types[i].DatabaseTypeName()
			}
			row[col] = normalizeValue(values[i], dbType)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// normalizeValue converts driver values into the scalar types templates understand.
func normalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch strings.ToUpper(dbType) {
	case "INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT", "INT2", "INT4", "INT8",
		"UNSIGNED INT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// FileDB implements the embedded-file backend variant shared by sqlite3 and
// duckdb. Every Query opens a fresh single-connection handle, runs Setup
// statements followed by the query, and closes the handle before returning.
type FileDB struct {
	Kind   Kind
	Driver string
	DSN    string
	// Setup statements run on each fresh connection before the query.
	Setup  []string
	Logger *slog.Logger
}

// Query executes text on a fresh connection.
func (f *FileDB) Query(ctx context.Context, text string) ([]Row, error) {
	var results []Row
	err := f.withConn(ctx, func(conn *sql.Conn) error {
		f.logger().Debug("executing query", slog.String("query", text))

		//nolint:rowserrcheck // ScanRows checks rows.Err()
		rows, err := conn.QueryContext(ctx, text)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		results, err = ScanRows(rows)
		return err
	})
	if err != nil {
		f.logger().Error("query failed", slog.String("error", err.Error()))
		return nil, &QueryError{Kind: string(f.Kind), Err: err}
	}
	return results, nil
}

// Ping opens the database file and verifies it can be used.
func (f *FileDB) Ping(ctx context.Context) error {
	if err := f.withConn(ctx, func(conn *sql.Conn) error { return conn.PingContext(ctx) }); err != nil {
		return &QueryError{Kind: string(f.Kind), Err: err}
	}
	return nil
}

// Close is a no-op: no connection outlives a single Query.
func (f *FileDB) Close() error {
	return nil
}

func (f *FileDB) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	db, err := sql.Open(f.Driver, f.DSN)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", f.Kind, err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", f.Kind, err)
	}
	defer func() { _ = conn.Close() }()

	for _, stmt := range f.Setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("setup statement %q failed: %w", stmt, err)
		}
	}

	return fn(conn)
}

func (f *FileDB) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}
