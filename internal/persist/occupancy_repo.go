package persist

import (
	"context"
	"fmt"
)

// OccupancyChange is one cell whose colour changed at a tick.
type OccupancyChange struct {
	Tick   uint64
	CellID string
	Color  string
}

type OccupancyRepo struct {
	db *DB
}

func NewOccupancyRepo(db *DB) *OccupancyRepo {
	return &OccupancyRepo{db: db}
}

// WriteChanges atomically writes a batch of changes for a run in a single
// transaction. On error nothing is written and the caller keeps the batch.
func (r *OccupancyRepo) WriteChanges(ctx context.Context, runID int64, changes []OccupancyChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("occupancy begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range changes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO occupancy_changes (run_id, tick, cell_id, color)
			 VALUES ($1, $2, $3, $4)`,
			runID, int64(c.Tick), c.CellID, c.Color,
		); err != nil {
			return fmt.Errorf("occupancy insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// History returns the recorded changes of one cell in tick order.
func (r *OccupancyRepo) History(ctx context.Context, runID int64, cellID string) ([]OccupancyChange, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, cell_id, color FROM occupancy_changes
		 WHERE run_id = $1 AND cell_id = $2 ORDER BY tick, id`, runID, cellID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OccupancyChange
	for rows.Next() {
		var c OccupancyChange
		var tick int64
		if err := rows.Scan(&tick, &c.CellID, &c.Color); err != nil {
			return nil, err
		}
		c.Tick = uint64(tick)
		out = append(out, c)
	}
	return out, rows.Err()
}
