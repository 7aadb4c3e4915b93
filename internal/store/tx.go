package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/savory/internal/apperr"
)

// withTx runs fn inside a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// IsBusy reports whether err is SQLite lock contention.
func IsBusy(err error) bool {
	if apperr.Is(err, apperr.KindTransientStorage) {
		return true
	}
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY conflict.
func IsUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// classify tags lock contention and unique conflicts with their apperr kind
// and leaves every other error untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	case IsBusy(err):
		return apperr.E(apperr.KindTransientStorage, "storage busy", err)
	case IsUniqueViolation(err):
		return apperr.E(apperr.KindIntegrityConflict, "already exists", err)
	}
	return err
}

// RetryPolicy bounds how often a write is retried when the database is busy.
type RetryPolicy struct {
	Retries uint64
	Delay   time.Duration
}

// DefaultRetryPolicy retries a busy write three times, 100ms apart.
var DefaultRetryPolicy = RetryPolicy{Retries: 3, Delay: 100 * time.Millisecond}

// Do runs fn, retrying only transient storage errors. The final error is
// returned as-is once retries are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(p.Retries, retry.NewConstant(delay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
