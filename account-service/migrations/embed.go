// Package migrations holds the account store schema.
package migrations

import "embed"

// FS embeds the goose SQL migrations.
//
//go:embed *.sql
var FS embed.FS

// VersionTable keeps this service's goose history apart from other services
// sharing the database.
const VersionTable = "account_service_goose_version"
