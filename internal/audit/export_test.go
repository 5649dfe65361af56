package audit

import (
	"database/sql"
	"time"
)

// SetClock replaces the store clock for tests.
func SetClock(s *Store, fn func() time.Time) { s.now = fn }

// SetOpenDB swaps the database opener and returns a restore func.
func SetOpenDB(fn func(driver, dsn string) (*sql.DB, error)) func() {
	prev := openDB
	openDB = fn
	return func() { openDB = prev }
}
