package sqlite

import (
	"net/url"
	"strconv"
	"strings"
)

// busyTimeoutMillis is how long a connection waits on a locked database
// before returning SQLITE_BUSY.
const busyTimeoutMillis = 5000

// DSN adds the connection parameters the store relies on to dsn, keeping
// any the caller already set:
//
//   - busy_timeout so concurrent writers queue instead of failing
//   - _txlock=immediate so transactions take the write lock up front
//   - _time_format=sqlite so times are written in a parseable layout
//   - foreign_keys on every pooled connection, not just the first
func DSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}

	pragmas := q["_pragma"]
	if !hasPragma(pragmas, "busy_timeout") {
		q.Add("_pragma", "busy_timeout("+strconv.Itoa(busyTimeoutMillis)+")")
	}
	if !hasPragma(pragmas, "foreign_keys") {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if q.Get("_txlock") == "" {
		q.Set("_txlock", "immediate")
	}
	if q.Get("_time_format") == "" {
		q.Set("_time_format", "sqlite")
	}
	return base + "?" + q.Encode()
}

func hasPragma(pragmas []string, name string) bool {
	for _, p := range pragmas {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return true
		}
	}
	return false
}
