// Package migrations holds the identity schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

const VersionTable = "user_service_goose_version"
