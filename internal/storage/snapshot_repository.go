package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
)

// SnapshotRepository handles net-worth snapshot storage. Rows are append-only.
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var s models.Snapshot
	var total string
	var history []byte
	if err := row.Scan(&s.ID, &s.Date, &total, &history); err != nil {
		return nil, err
	}
	v, err := parseNumeric(total)
	if err != nil {
		return nil, err
	}
	s.TotalNetWorth = v
	s.History = history
	return &s, nil
}

// Latest returns the most recently stored snapshot, or nil when none exists.
// Insertion order wins over the snapshot date, so a backdated write does not
// change what the next write is compared against.
func (r *SnapshotRepository) Latest(ctx context.Context) (*models.Snapshot, error) {
	query := `
		SELECT id, date, total_net_worth::text, history
		FROM snapshots
		ORDER BY id DESC
		LIMIT 1
	`
	s, err := scanSnapshot(r.db.Pool().QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get latest snapshot", err)
	}
	return s, nil
}

// Insert appends a snapshot and fills its id and date
func (r *SnapshotRepository) Insert(ctx context.Context, s *models.Snapshot) error {
	if s.Date.IsZero() {
		s.Date = time.Now().UTC()
	}
	query := `
		INSERT INTO snapshots (date, total_net_worth, history)
		VALUES ($1, $2::numeric, $3)
		RETURNING id
	`
	var history interface{}
	if len(s.History) > 0 {
		history = []byte(s.History)
	}
	if err := r.db.Pool().QueryRow(ctx, query, s.Date, s.TotalNetWorth.String(), history).Scan(&s.ID); err != nil {
		return apperrors.NewDatabaseError("insert snapshot", err)
	}
	return nil
}

// List returns snapshots between from and to in chronological order.
// The history payload is not loaded.
func (r *SnapshotRepository) List(ctx context.Context, from, to time.Time) ([]models.Snapshot, error) {
	query := `
		SELECT id, date, total_net_worth::text, NULL::jsonb
		FROM snapshots
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, from, to)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan snapshot", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	return out, nil
}
