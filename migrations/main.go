package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every Go migration registered by this package
var Migrations = migrate.NewMigrations()
