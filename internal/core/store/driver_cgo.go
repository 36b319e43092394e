//go:build cgo

package store

import (
	// Registers the "libsql" database/sql driver; go-libsql requires cgo.
	_ "github.com/tursodatabase/go-libsql"
)
