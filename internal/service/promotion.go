package service

import (
	"context"
	"errors"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/logger"

	"github.com/google/uuid"
)

var (
	ErrUnknownOffer    = errors.New("unknown offer")
	ErrOfferNotPending = errors.New("offer is not pending")
)

// OfferStore is the slice of the offer repository promotion needs.
type OfferStore interface {
	GetByID(ctx context.Context, id string) (*domain.Offer, error)
	MarkAccepted(ctx context.Context, id string) (bool, error)
}

// MatchStore creates matches and backs the per-offer idempotency check.
type MatchStore interface {
	Create(ctx context.Context, m *domain.Match) error
	GetByOfferID(ctx context.Context, offerID string) (*domain.Match, error)
}

// MatchHost opens the live room for a new match (arming its deposit
// timer) and delivers private notifications. Satisfied by ws.Hub.
type MatchHost interface {
	OpenMatch(m *domain.Match)
	NotifyIdentity(address, eventType string, payload any)
}

// PromotionService converts an accepted marketplace offer into a match
// awaiting the challenger's deposit. The listing creator's NFT was
// escrowed when the listing went up, so their side counts as deposited
// from the start.
type PromotionService struct {
	offers        OfferStore
	matches       MatchStore
	host          MatchHost
	depositWindow time.Duration
}

func NewPromotionService(offers OfferStore, matches MatchStore, host MatchHost, depositWindow time.Duration) *PromotionService {
	if depositWindow <= 0 {
		depositWindow = 2 * time.Minute
	}
	return &PromotionService{
		offers:        offers,
		matches:       matches,
		host:          host,
		depositWindow: depositWindow,
	}
}

// CreateMatchFromAcceptedOffer is idempotent per offer id: accepting
// the same offer twice returns the match the first acceptance created.
func (s *PromotionService) CreateMatchFromAcceptedOffer(ctx context.Context, offerID string) (*domain.Match, error) {
	if existing, err := s.matches.GetByOfferID(ctx, offerID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrUnknownOffer
	}
	if offer.Status != domain.OfferPending {
		return nil, ErrOfferNotPending
	}

	deadline := time.Now().Add(s.depositWindow)
	oid := offer.ID
	m := &domain.Match{
		ID:                uuid.NewString(),
		OfferID:           &oid,
		CreatorAddress:    offer.CreatorAddress,
		ChallengerAddress: offer.OffererAddress,
		NFTContract:       offer.NFTContract,
		NFTTokenID:        offer.NFTTokenID,
		PriceWei:          offer.PriceWei,
		Phase:             domain.PhaseAwaitingDeposit,
		CreatorDeposited:  true,
		DepositDeadline:   &deadline,
		CreatedAt:         time.Now(),
	}

	// the match row is created first and the unique offer_id column is
	// the gate: losing the insert race (or retrying after a transient
	// failure) must land on whatever match already owns the offer
	if err := s.matches.Create(ctx, m); err != nil {
		if existing, lookupErr := s.matches.GetByOfferID(ctx, offerID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	// bookkeeping only: the match row already proves acceptance, so a
	// failed flip here is retried by nobody and must not fail the call
	if _, err := s.offers.MarkAccepted(ctx, offerID); err != nil {
		logger.Warn("offer status flip failed after promotion", "offer", offer.ID, "error", err)
	}

	logger.Info("offer promoted to match", "offer", offer.ID, "match", m.ID)

	if s.host != nil {
		s.host.OpenMatch(m)
		notice := map[string]any{
			"match_id":         m.ID,
			"offer_id":         offer.ID,
			"deposit_deadline": deadline,
		}
		s.host.NotifyIdentity(offer.OffererAddress, "offer_accepted", notice)
		s.host.NotifyIdentity(offer.CreatorAddress, "offer_accepted", notice)
	}

	return m, nil
}
