//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// CGODriver is the database/sql name of the cgo SQLite driver. It is only
// available in cgo builds; pass it to OpenSQLiteFactStore.
const CGODriver = "sqlite3"
