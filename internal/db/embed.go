package db

import "embed"

// migrationFS holds the schema this package owns, applied by Initialize.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
