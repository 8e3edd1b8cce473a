// Package migrations carries the schema files compiled into the binary,
// so the server and its tests apply the same DDL regardless of working
// directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
