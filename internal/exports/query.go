package exports

import (
	"context"
	"database/sql"

	"github.com/framecut/framecut-backend/internal/db"
)

// Query is the read side: a job together with its ordered events.
type Query struct {
	db *db.DB
}

func NewQuery(database *db.DB) *Query {
	return &Query{db: database}
}

// JobWithEvents reads the job row and its events inside one transaction so the
// events are exactly the ledger prefix that produced the row.
func (q *Query) JobWithEvents(ctx context.Context, id string) (*JobWithEvents, error) {
	var out *JobWithEvents
	err := q.db.WithTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		events, err := listEvents(ctx, tx, id)
		if err != nil {
			return err
		}
		out = &JobWithEvents{Job: job, Events: events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
