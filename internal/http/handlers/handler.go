package handlers

import (
	"nftflip/internal/repository"
	"nftflip/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	DB        *pgxpool.Pool
	MatchRepo *repository.MatchRepository
	OfferRepo *repository.OfferRepository
	Promotion *service.PromotionService
}

func NewHandler(db *pgxpool.Pool, promotion *service.PromotionService) *Handler {
	return &Handler{
		DB:        db,
		MatchRepo: repository.NewMatchRepository(db),
		OfferRepo: repository.NewOfferRepository(db),
		Promotion: promotion,
	}
}

// getAddress extracts the wallet address the JWT middleware stored.
func getAddress(c interface{ Get(any) (any, bool) }) (string, bool) {
	val, ok := c.Get("address")
	if !ok {
		return "", false
	}
	addr, ok := val.(string)
	return addr, ok
}
