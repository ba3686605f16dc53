//go:build !cgo_sqlite

package db

import (
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dataSourceName builds a modernc.org/sqlite DSN. Each _pragma value runs on
// every new connection, busy_timeout first and the rest in lexical order.
// With a passphrase the journal stays in rollback mode so that the key pragma
// is the first one to read the file.
func dataSourceName(path string, o options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout.Milliseconds()))
	if o.passphrase != "" {
		q.Add("_pragma", fmt.Sprintf("key('%s')", strings.ReplaceAll(o.passphrase, "'", "''")))
	} else {
		q.Add("_pragma", "journal_mode(wal)")
	}
	return path + "?" + q.Encode()
}
