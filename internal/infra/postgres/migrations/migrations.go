// Package migrations holds the schema of the catalog and attempt store.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
