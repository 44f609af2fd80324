//go:build sqlite_cgo

package storage

// Compiled with CGO_ENABLED=1 and the sqlite_cgo tag:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver name
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// dsn adds the lock wait so a CLI write and a running server can share the
// file. mattn/go-sqlite3 takes it as a connection parameter.
func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", path, sep, busyTimeoutMs)
}
