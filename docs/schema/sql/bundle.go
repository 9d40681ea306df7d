// Package sqldocs exposes the journal DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the journal DDL for the modernc SQLite store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the journal DDL for the pgx Postgres store.
//
//go:embed postgres.sql
var Postgres string
