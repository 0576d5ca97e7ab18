package escrow

import (
	"context"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/logger"
	"nftflip/internal/metrics"

	"github.com/go-co-op/gocron/v2"
)

// PayoutStore is the slice of the payout repository the worker needs.
type PayoutStore interface {
	GetPending(ctx context.Context, limit int) ([]domain.Payout, error)
	MarkSettled(ctx context.Context, id int64) error
	MarkAttemptFailed(ctx context.Context, id int64, cause string) error
}

// Worker retries pending escrow instructions on a schedule. A match
// whose payout call failed stays Completed with a pending payout row;
// this worker is the only retry path.
type Worker struct {
	payouts   PayoutStore
	escrow    Escrow
	scheduler gocron.Scheduler
	interval  time.Duration
}

func NewWorker(payouts PayoutStore, esc Escrow, interval time.Duration) (*Worker, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{payouts: payouts, escrow: esc, scheduler: s, interval: interval}, nil
}

func (w *Worker) Start() error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.sweep),
	)
	if err != nil {
		return err
	}
	w.scheduler.Start()
	logger.Info("payout worker started", "interval", w.interval.String())
	return nil
}

func (w *Worker) Stop() {
	_ = w.scheduler.Shutdown()
}

func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pending, err := w.payouts.GetPending(ctx, 50)
	if err != nil {
		logger.Error("payout sweep: listing pending failed", "error", err)
		return
	}

	for _, p := range pending {
		if err := w.settle(ctx, p); err != nil {
			metrics.PayoutRetries.Inc()
			logger.Warn("payout attempt failed", "match", p.MatchID, "kind", p.Kind, "error", err)
			if dbErr := w.payouts.MarkAttemptFailed(ctx, p.ID, err.Error()); dbErr != nil {
				logger.Error("payout sweep: recording failure", "error", dbErr)
			}
			continue
		}
		if err := w.payouts.MarkSettled(ctx, p.ID); err != nil {
			logger.Error("payout sweep: marking settled", "error", err)
		}
	}
}

func (w *Worker) settle(ctx context.Context, p domain.Payout) error {
	switch p.Kind {
	case domain.PayoutRefund:
		return w.escrow.RefundAll(ctx, p.MatchID)
	default:
		winner := ""
		if p.WinnerAddress != nil {
			winner = *p.WinnerAddress
		}
		return w.escrow.Release(ctx, p.MatchID, winner)
	}
}
