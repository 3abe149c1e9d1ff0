package sqlstore

import (
	"database/sql"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by this package. It is
// go-sqlite3 with a REGEXP function installed on every connection.
const DriverName = "sqlite3_docquery"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", matchRegexp, true)
		},
	})
}

var patterns sync.Map // string → *regexp.Regexp

// matchRegexp backs "value REGEXP pattern"; SQLite passes the pattern
// first.
func matchRegexp(pattern, value string) (bool, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(value), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	patterns.Store(pattern, re)
	return re.MatchString(value), nil
}
