package store

import _ "embed"

// Schema is the authoritative MySQL-compatible DDL for the versioned
// backend (spec.md §6). cmd/membank-admin applies it at bootstrap time.
//
//go:embed schema.sql
var Schema string
