package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestMatchRepository_RoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer db.Close()

	applyMigrationsToPool(t, db)

	ctx := context.Background()
	offers := repository.NewOfferRepository(db)
	matches := repository.NewMatchRepository(db)

	offer := &domain.Offer{
		ID:             uuid.NewString(),
		ListingID:      uuid.NewString(),
		CreatorAddress: "0x1111111111111111111111111111111111111111",
		OffererAddress: "0x2222222222222222222222222222222222222222",
		PriceWei:       "500000000000000000",
		Status:         domain.OfferPending,
	}
	if err := offers.Create(ctx, offer); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	flipped, err := offers.MarkAccepted(ctx, offer.ID)
	if err != nil || !flipped {
		t.Fatalf("accept offer: flipped=%v err=%v", flipped, err)
	}
	// second accept must be a no-op
	flipped, err = offers.MarkAccepted(ctx, offer.ID)
	if err != nil || flipped {
		t.Fatalf("repeat accept should not flip: flipped=%v err=%v", flipped, err)
	}

	deadline := time.Now().Add(2 * time.Minute)
	oid := offer.ID
	m := &domain.Match{
		ID:                uuid.NewString(),
		OfferID:           &oid,
		CreatorAddress:    offer.CreatorAddress,
		ChallengerAddress: offer.OffererAddress,
		PriceWei:          offer.PriceWei,
		Phase:             domain.PhaseAwaitingDeposit,
		CreatorDeposited:  true,
		DepositDeadline:   &deadline,
	}
	if err := matches.Create(ctx, m); err != nil {
		t.Fatalf("create match: %v", err)
	}

	byOffer, err := matches.GetByOfferID(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get by offer: %v", err)
	}
	if byOffer == nil || byOffer.ID != m.ID {
		t.Fatalf("expected match %s by offer id", m.ID)
	}

	m.Phase = domain.PhaseActive
	m.ChallengerDeposited = true
	m.CurrentRound = 1
	m.DepositDeadline = nil
	m.Round = domain.Round{
		Number:      1,
		Phase:       domain.RoundChoosing,
		CurrentTurn: domain.RoleCreator,
	}
	if err := matches.Save(ctx, m); err != nil {
		t.Fatalf("save match: %v", err)
	}

	got, err := matches.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.Phase != domain.PhaseActive {
		t.Fatalf("expected active match, got %+v", got)
	}
	if got.Round.Number != 1 || got.Round.CurrentTurn != domain.RoleCreator {
		t.Fatalf("round projection lost: %+v", got.Round)
	}
	if got.DepositDeadline != nil {
		t.Fatalf("deposit deadline should clear on activation")
	}

	open, err := matches.ListOpen(ctx, 100)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	found := false
	for _, o := range open {
		if o.ID == m.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("active match missing from open list")
	}
}

func TestPayoutRepository_PendingLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer db.Close()

	applyMigrationsToPool(t, db)

	ctx := context.Background()
	matches := repository.NewMatchRepository(db)
	payouts := repository.NewPayoutRepository(db)

	winner := "0x1111111111111111111111111111111111111111"
	m := &domain.Match{
		ID:             uuid.NewString(),
		CreatorAddress: winner,
		PriceWei:       "1",
		Phase:          domain.PhaseCompleted,
	}
	if err := matches.Create(ctx, m); err != nil {
		t.Fatalf("create match: %v", err)
	}

	p := &domain.Payout{
		MatchID:       m.ID,
		Kind:          domain.PayoutRelease,
		WinnerAddress: &winner,
		Status:        domain.PayoutPending,
	}
	if err := payouts.Create(ctx, p); err != nil {
		t.Fatalf("create payout: %v", err)
	}

	if err := payouts.MarkAttemptFailed(ctx, p.ID, "escrow unreachable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := payouts.GetPending(ctx, 100)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	var mine *domain.Payout
	for i := range pending {
		if pending[i].ID == p.ID {
			mine = &pending[i]
		}
	}
	if mine == nil {
		t.Fatalf("failed payout should stay pending")
	}
	if mine.Attempts != 1 || mine.LastError == nil {
		t.Fatalf("attempt bookkeeping lost: %+v", mine)
	}

	if err := payouts.MarkSettled(ctx, p.ID); err != nil {
		t.Fatalf("mark settled: %v", err)
	}
	pending, err = payouts.GetPending(ctx, 100)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	for _, q := range pending {
		if q.ID == p.ID {
			t.Fatalf("settled payout still pending")
		}
	}
}
