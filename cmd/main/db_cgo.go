//go:build cgo_sqlite

package main

import (
	_ "github.com/mattn/go-sqlite3"
)

// dbDriver is the cgo SQLite driver, selected with -tags cgo_sqlite.
const dbDriver = "sqlite3"

// dbParams enables WAL and waits on locks instead of failing with
// SQLITE_BUSY when requests write concurrently.
const dbParams = "_journal_mode=WAL&_busy_timeout=5000"
