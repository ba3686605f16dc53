//go:build cgo_sqlite

// Build with: go build -tags cgo_sqlite (requires CGO_ENABLED=1).
// Passphrases use go-sqlite3's user authentication, which additionally
// needs the sqlite_userauth build tag.
package db

import (
	"net/url"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

const authUser = "sqlitekit"

func dataSourceName(path string, o options) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	q.Set("_journal_mode", "WAL")
	if o.passphrase != "" {
		q.Set("_auth", "")
		q.Set("_auth_user", authUser)
		q.Set("_auth_pass", o.passphrase)
	}
	return path + "?" + q.Encode()
}
