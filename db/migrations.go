// Package db holds the SQL migrations for the connection event log.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
