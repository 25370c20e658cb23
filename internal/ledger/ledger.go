// Package ledger is the durable score store. Rows are append-only; a user's
// total is the sum of their rows across all sessions.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/errors"
	"github.com/victornm/triviad/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
		eb: c.EventBus,
	}
}

// AddPoints appends a score row for the user and returns their new total.
// The ledger accumulates across sessions; deltas are never negative.
func (s *Service) AddPoints(ctx context.Context, userID, name string, delta int64, playedAt time.Time) (int64, error) {
	const stmt = `
WITH inserted AS (
	INSERT INTO scores (user_id, username, points, played_at)
	VALUES ($1, $2, $3, $4)
)
SELECT COALESCE(SUM(points), 0) FROM scores WHERE user_id = $1;`

	// SUM(bigint) comes back as numeric.
	var prev decimal.Decimal
	if err := s.db.QueryRow(ctx, stmt, userID, name, delta, playedAt).Scan(&prev); err != nil {
		return 0, errors.Internal(err)
	}

	// The CTE insert is not visible to the aggregate in the same statement.
	total := prev.IntPart() + delta

	s.eb.Publish(ctx, domain.EventScorePersisted{
		UserID:   userID,
		Username: name,
		Total:    total,
		PlayedAt: playedAt,
	})

	return total, nil
}

// TopScores returns the highest cumulative totals, best first.
func (s *Service) TopScores(ctx context.Context, limit int) ([]domain.Standing, error) {
	const stmt = `
SELECT user_id, username, SUM(points) AS total
FROM scores
GROUP BY user_id, username
ORDER BY total DESC
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, limit)
	if err != nil {
		return nil, errors.Internal(err)
	}

	standings, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Standing, error) {
		var (
			st    domain.Standing
			total decimal.Decimal
		)
		if err := r.Scan(&st.UserID, &st.Name, &total); err != nil {
			return domain.Standing{}, err
		}
		st.Score = total.IntPart()
		return st, nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	return standings, nil
}

// Lookup returns a user's cumulative record.
func (s *Service) Lookup(ctx context.Context, userID string) (domain.LedgerEntry, error) {
	const stmt = `
SELECT username, COALESCE(SUM(points), 0) AS total, MAX(played_at) AS last_played
FROM scores
WHERE user_id = $1
GROUP BY username
ORDER BY last_played DESC
LIMIT 1;`

	var (
		entry domain.LedgerEntry
		total decimal.Decimal
	)
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&entry.Name, &total, &entry.LastPlayed)
	if err == pgx.ErrNoRows {
		return domain.LedgerEntry{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("ledger: no record for user %s", userID))
	}
	if err != nil {
		return domain.LedgerEntry{}, errors.Internal(err)
	}

	entry.Total = total.IntPart()
	return entry, nil
}
