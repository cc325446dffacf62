// Package db provides embedded database schema and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for the products, orders and payments
// tables. Every statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
