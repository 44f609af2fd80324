//go:build !sqlite_cgo

package storage

// Compiled by default. The pure Go port needs no C toolchain:
//
//	CGO_ENABLED=0 go build ./...

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver name
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// dsn adds the lock wait so a CLI write and a running server can share the
// file. modernc.org/sqlite applies it through a _pragma parameter.
func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", path, sep, busyTimeoutMs)
}
