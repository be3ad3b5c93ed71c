package sqlite

import "github.com/leapstack-labs/querypipe/pkg/backend"

func init() {
	backend.Register(backend.KindSQLite, []string{"database"}, New)
}
