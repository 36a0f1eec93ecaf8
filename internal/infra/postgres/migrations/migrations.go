// Package migrations holds the bun migrations of the match schema. Each
// migration registers itself from a file named after its version.
package migrations

import (
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()
