package repository

import (
	"context"
	"time"

	"nftflip/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PayoutRepository struct {
	db *pgxpool.Pool
}

func NewPayoutRepository(db *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, p *domain.Payout) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO payouts (match_id, kind, winner_address, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.MatchID, p.Kind, p.WinnerAddress, p.Status).Scan(&p.ID, &p.CreatedAt)
}

// GetPending returns unsettled escrow instructions, oldest first, for
// the retry worker.
func (r *PayoutRepository) GetPending(ctx context.Context, limit int) ([]domain.Payout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, match_id, kind, winner_address, status, attempts, last_error, created_at, settled_at
		FROM payouts
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.PayoutPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := rows.Scan(
			&p.ID, &p.MatchID, &p.Kind, &p.WinnerAddress, &p.Status,
			&p.Attempts, &p.LastError, &p.CreatedAt, &p.SettledAt,
		); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *PayoutRepository) MarkSettled(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $2, settled_at = $3 WHERE id = $1
	`, id, domain.PayoutSettled, time.Now())
	return err
}

// MarkAttemptFailed records a failed escrow call; the row stays pending
// so a later sweep retries it.
func (r *PayoutRepository) MarkAttemptFailed(ctx context.Context, id int64, cause string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, id, cause)
	return err
}
