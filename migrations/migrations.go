// Package migrations embeds the SQL migration set applied by cmd/migrate.
package migrations

import "embed"

// FS holds every numbered .up.sql/.down.sql pair, consumed by
// golang-migrate's iofs source driver.
//
//go:embed *.sql
var FS embed.FS
