// Package pg is the Postgres store. It implements the ledger and payment
// services plus the reconciliation report and payout outbox stores on one
// *sql.DB, so flows that span them (webhook apply, settlement) commit in a
// single database transaction.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

type Store struct {
	db   *sql.DB
	rate ledger.Rate
}

var (
	_ ledger.Service   = (*Store)(nil)
	_ payments.Service = (*Store)(nil)
)

// Open connects via the pgx stdlib driver. rate is the commission rate
// applied to payments marked paid through this store.
func Open(dsn string, rate ledger.Rate) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, rate: rate}, nil
}

// NewWithDB wraps an existing pool. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, rate ledger.Rate) *Store {
	return &Store{db: db, rate: rate}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }
