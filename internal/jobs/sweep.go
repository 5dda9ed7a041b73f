package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Verifier is satisfied by Client.
type Verifier interface {
	EnqueueVerify(ctx context.Context, donationID int64) error
}

// Sweeper re-enqueues donations that stayed pending past Grace, e.g. because
// the api could not reach Redis or every retry was spent.
type Sweeper struct {
	Ledger   Ledger
	Verifier Verifier
	Every    time.Duration
	Grace    time.Duration
	Batch    int
	Logger   zerolog.Logger
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	every := s.Every
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	s.Logger.Info().Dur("every", every).Msg("sweeper: started")
	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			s.Logger.Error().Err(err).Msg("sweeper: list pending donations")
		} else if n > 0 {
			s.Logger.Info().Int("requeued", n).Msg("sweeper: pending donations requeued")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce requeues one batch and reports how many tasks were enqueued.
// Donations whose task is still live are not counted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	pending, err := s.Ledger.PendingDonations(ctx, s.Grace, batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range pending {
		err := s.Verifier.EnqueueVerify(ctx, d.ID)
		switch {
		case errors.Is(err, ErrAlreadyQueued):
			s.Logger.Debug().Int64("donation_id", d.ID).Msg("sweeper: verification still queued")
		case err != nil:
			s.Logger.Warn().Err(err).Int64("donation_id", d.ID).Msg("sweeper: enqueue failed")
		default:
			n++
		}
	}
	return n, nil
}
