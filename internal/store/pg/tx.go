package pg

import (
	"database/sql"

	"github.com/opsdash/scheduler/internal/store"
)

// sqlTx implements store.Tx over a single *sql.Tx, handing out per-entity
// stores that all share the same underlying transaction.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Jobs() store.JobStore     { return &jobStore{tx: t.tx} }
func (t *sqlTx) Tasks() store.TaskStore   { return &taskStore{tx: t.tx} }
func (t *sqlTx) Tags() store.TagStore     { return &tagStore{tx: t.tx} }
func (t *sqlTx) Alerts() store.AlertStore { return &alertStore{tx: t.tx} }
func (t *sqlTx) Users() store.UserStore   { return &userStore{tx: t.tx} }
