//go:build !cgo_sqlite

package db

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestDataSourceName(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		pragmas []string
	}{
		{
			name:    "default",
			opts:    options{busyTimeout: 5 * time.Second},
			pragmas: []string{"busy_timeout(5000)", "journal_mode(wal)"},
		},
		{
			name:    "passphrase",
			opts:    options{busyTimeout: time.Second, passphrase: "it's"},
			pragmas: []string{"busy_timeout(1000)", "key('it''s')"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dsn := dataSourceName("/tmp/x.db", tc.opts)
			path, raw, ok := strings.Cut(dsn, "?")
			if !ok || path != "/tmp/x.db" {
				t.Fatalf("unexpected dsn %q", dsn)
			}
			q, err := url.ParseQuery(raw)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			got := q["_pragma"]
			if len(got) != len(tc.pragmas) {
				t.Fatalf("expected pragmas %v, got %v", tc.pragmas, got)
			}
			for i := range got {
				if got[i] != tc.pragmas[i] {
					t.Errorf("pragma %d: expected %q, got %q", i, tc.pragmas[i], got[i])
				}
			}
		})
	}
}
