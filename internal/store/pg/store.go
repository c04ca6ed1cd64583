package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opsdash/scheduler/internal/store"
)

// Store is the Postgres-backed store.Store, grounded on
// itsddvn-goclaw/internal/store/pg's pool-plus-transaction shape but
// replacing the teacher's ambient *sql.DB singleton with an explicit
// WithTx seam (SPEC_FULL.md §11's runtime-context design note).
type Store struct {
	db *sql.DB
}

// Open connects to dsn and returns a ready Store. Callers that also need to
// run migrations should call Migrate(dsn) first.
func Open(dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// WithTx runs fn inside one *sql.Tx: every JobStore/TaskStore/TagStore/
// AlertStore/UserStore write fn performs commits together, or none do.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlDBTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, &sqlTx{tx: sqlDBTx}); err != nil {
		if rbErr := sqlDBTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlDBTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
