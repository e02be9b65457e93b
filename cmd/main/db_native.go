//go:build !cgo_sqlite

package main

import (
	_ "modernc.org/sqlite"
)

// dbDriver is the pure Go SQLite driver used by default.
const dbDriver = "sqlite"

// dbParams enables WAL and waits on locks instead of failing with
// SQLITE_BUSY when requests write concurrently.
const dbParams = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
