package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type RunRow struct {
	ID         int64
	Name       string
	SimAddress string
	CellCount  int
	Ticks      uint64
	StartedAt  time.Time
	EndedAt    *time.Time
}

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Start records a new run and returns its id.
func (r *RunRepo) Start(ctx context.Context, name, simAddress string, cellCount int) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO runs (name, sim_address, cell_count) VALUES ($1, $2, $3) RETURNING id`,
		name, simAddress, cellCount,
	).Scan(&id)
	return id, err
}

// Finish stamps the end time and tick count of a run.
func (r *RunRepo) Finish(ctx context.Context, id int64, ticks uint64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE runs SET ticks = $2, ended_at = now() WHERE id = $1`,
		id, int64(ticks),
	)
	return err
}

func (r *RunRepo) Load(ctx context.Context, id int64) (*RunRow, error) {
	row := &RunRow{}
	var ticks int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, sim_address, cell_count, ticks, started_at, ended_at
		 FROM runs WHERE id = $1`, id,
	).Scan(&row.ID, &row.Name, &row.SimAddress, &row.CellCount, &ticks, &row.StartedAt, &row.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Ticks = uint64(ticks)
	return row, nil
}
