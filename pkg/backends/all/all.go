// Package all registers every built-in querypipe backend.
//
//	import _ "github.com/leapstack-labs/querypipe/pkg/backends/all"
package all

import (
	_ "github.com/leapstack-labs/querypipe/pkg/backends/duckdb"    // duckdb
	_ "github.com/leapstack-labs/querypipe/pkg/backends/http"      // http
	_ "github.com/leapstack-labs/querypipe/pkg/backends/mysql"     // mysql, mysql2
	_ "github.com/leapstack-labs/querypipe/pkg/backends/postgres"  // postgres
	_ "github.com/leapstack-labs/querypipe/pkg/backends/sqlite"    // sqlite3
	_ "github.com/leapstack-labs/querypipe/pkg/backends/sqlserver" // sqlserver
)
