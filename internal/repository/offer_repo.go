package repository

import (
	"context"
	"time"

	"nftflip/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferRepository struct {
	db *pgxpool.Pool
}

func NewOfferRepository(db *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{db: db}
}

func (r *OfferRepository) Create(ctx context.Context, o *domain.Offer) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO offers (id, listing_id, creator_address, offerer_address, nft_contract, nft_token_id, price_wei, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, o.ID, o.ListingID, o.CreatorAddress, o.OffererAddress, o.NFTContract, o.NFTTokenID, o.PriceWei, o.Status).Scan(&o.CreatedAt)
}

func (r *OfferRepository) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, listing_id, creator_address, offerer_address, nft_contract, nft_token_id,
		       price_wei, status, created_at, accepted_at
		FROM offers
		WHERE id = $1
	`, id)

	var o domain.Offer
	if err := row.Scan(
		&o.ID, &o.ListingID, &o.CreatorAddress, &o.OffererAddress, &o.NFTContract, &o.NFTTokenID,
		&o.PriceWei, &o.Status, &o.CreatedAt, &o.AcceptedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// MarkAccepted flips a pending offer to accepted and reports whether
// this call did the flip. A false return means someone else accepted it
// first, which the promotion path treats as "already promoted".
func (r *OfferRepository) MarkAccepted(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE offers
		SET status = $2, accepted_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.OfferAccepted, time.Now(), domain.OfferPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
