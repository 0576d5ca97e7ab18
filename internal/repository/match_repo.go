package repository

import (
	"context"
	"encoding/json"
	"time"

	"nftflip/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MatchRepository struct {
	db *pgxpool.Pool
}

func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

const matchColumns = `id, offer_id, creator_address, challenger_address, nft_contract, nft_token_id,
	price_wei, phase, current_round, creator_score, challenger_score,
	creator_deposited, challenger_deposited, deposit_deadline, winner,
	creator_reference, round, created_at, updated_at`

func (r *MatchRepository) Create(ctx context.Context, m *domain.Match) error {
	roundJSON, err := json.Marshal(m.Round)
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx, `
		INSERT INTO matches (id, offer_id, creator_address, challenger_address, nft_contract, nft_token_id,
			price_wei, phase, current_round, creator_score, challenger_score,
			creator_deposited, challenger_deposited, deposit_deadline, winner, creator_reference, round)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`, m.ID, m.OfferID, m.CreatorAddress, m.ChallengerAddress, m.NFTContract, m.NFTTokenID,
		m.PriceWei, m.Phase, m.CurrentRound, m.CreatorScore, m.ChallengerScore,
		m.CreatorDeposited, m.ChallengerDeposited, m.DepositDeadline, m.Winner,
		m.CreatorReference, roundJSON,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// Save persists the full mutable projection of a match. The room is the
// single writer for a match, so a plain overwrite is race-free.
func (r *MatchRepository) Save(ctx context.Context, m *domain.Match) error {
	roundJSON, err := json.Marshal(m.Round)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE matches
		SET challenger_address = $2, phase = $3, current_round = $4,
		    creator_score = $5, challenger_score = $6,
		    creator_deposited = $7, challenger_deposited = $8,
		    deposit_deadline = $9, winner = $10, creator_reference = $11,
		    round = $12, updated_at = now()
		WHERE id = $1
	`, m.ID, m.ChallengerAddress, m.Phase, m.CurrentRound,
		m.CreatorScore, m.ChallengerScore,
		m.CreatorDeposited, m.ChallengerDeposited,
		m.DepositDeadline, m.Winner, m.CreatorReference, roundJSON)
	return err
}

func (r *MatchRepository) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	row := r.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	return scanMatch(row)
}

// GetByOfferID backs the promotion idempotency check: accepting the
// same offer twice finds the match the first acceptance created.
func (r *MatchRepository) GetByOfferID(ctx context.Context, offerID string) (*domain.Match, error) {
	row := r.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE offer_id = $1`, offerID)
	return scanMatch(row)
}

func (r *MatchRepository) ListOpen(ctx context.Context, limit int) ([]*domain.Match, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE phase IN ($1, $2, $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, domain.PhaseAwaitingChallenger, domain.PhaseAwaitingDeposit, domain.PhaseActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	var challenger *string
	var reference *string
	var roundJSON []byte
	var depositDeadline *time.Time

	if err := row.Scan(
		&m.ID, &m.OfferID, &m.CreatorAddress, &challenger, &m.NFTContract, &m.NFTTokenID,
		&m.PriceWei, &m.Phase, &m.CurrentRound, &m.CreatorScore, &m.ChallengerScore,
		&m.CreatorDeposited, &m.ChallengerDeposited, &depositDeadline, &m.Winner,
		&reference, &roundJSON, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if challenger != nil {
		m.ChallengerAddress = *challenger
	}
	if reference != nil {
		side := domain.Side(*reference)
		m.CreatorReference = &side
	}
	m.DepositDeadline = depositDeadline
	if err := json.Unmarshal(roundJSON, &m.Round); err != nil {
		return nil, err
	}
	return &m, nil
}
