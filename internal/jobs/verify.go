package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/chain"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
)

// Ledger is the donation side of the campaign service.
type Ledger interface {
	GetDonation(ctx context.Context, id int64) (*domain.Donation, error)
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	ConfirmDonation(ctx context.Context, id int64) (*domain.ConfirmResult, error)
	FailDonation(ctx context.Context, id int64, reason string) error
	PendingDonations(ctx context.Context, grace time.Duration, limit int) ([]domain.Donation, error)
	Reconcile(ctx context.Context) ([]domain.TotalDrift, error)
}

// Worker handles the asynq task types.
type Worker struct {
	Ledger     Ledger
	Chains     chain.Registry
	// Recipients holds the account donations on a network must pay. Networks
	// without one pay the project creator.
	Recipients map[domain.Network]string
	Poll       time.Duration
	Timeout    time.Duration
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVerifyDonation, w.HandleVerify)
	mux.HandleFunc(TypeReconcileTotals, w.HandleReconcile)
}

// HandleVerify waits for the donation's transaction to seal, then confirms or
// fails the donation. Returning an error lets asynq retry.
func (w *Worker) HandleVerify(ctx context.Context, t *asynq.Task) error {
	var p VerifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	log := w.Logger.With().Int64("donation_id", p.DonationID).Logger()

	donation, err := w.Ledger.GetDonation(ctx, p.DonationID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Msg("verify: donation not found")
		return nil
	}
	if err != nil {
		return err
	}
	if donation.Status != domain.DonationPending {
		return nil
	}

	c, err := w.Chains.For(donation.Network)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	waitCtx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	started := time.Now()
	res, err := c.WaitSealed(waitCtx, donation.TransactionID, w.Poll)
	w.Metrics.SealWait(time.Since(started))
	switch {
	case errors.Is(err, chain.ErrInvalidTx):
		return w.fail(ctx, donation, "malformed transaction id")
	case err != nil:
		log.Warn().Err(err).Str("tx", donation.TransactionID).Msg("verify: transaction not sealed yet")
		return err
	}

	switch res.Status {
	case chain.StatusSealed:
		if res.Sender != "" && !sameAccount(donation.Network, res.Sender, donation.DonorAddress) {
			return w.fail(ctx, donation, fmt.Sprintf("transaction sent by %s, not the donor", res.Sender))
		}
		to, err := w.recipient(ctx, donation)
		if errors.Is(err, domain.ErrNotFound) {
			return w.fail(ctx, donation, "project not found")
		}
		if err != nil {
			return err
		}
		received := res.Received(to, func(a, b string) bool { return sameAccount(donation.Network, a, b) })
		if received < donation.Amount {
			return w.fail(ctx, donation, fmt.Sprintf("transaction paid %s to %s, donation claims %s", received, to, donation.Amount))
		}
		confirmed, err := w.Ledger.ConfirmDonation(ctx, donation.ID)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil
			}
			return err
		}
		log.Info().
			Str("tx", donation.TransactionID).
			Str("project_total", confirmed.ProjectTotal.String()).
			Msg("verify: donation sealed")
		return nil
	case chain.StatusExpired:
		return w.fail(ctx, donation, "transaction expired")
	default:
		return w.fail(ctx, donation, coalesce(res.Error, "transaction failed"))
	}
}

func (w *Worker) recipient(ctx context.Context, d *domain.Donation) (string, error) {
	if to := w.Recipients[d.Network]; to != "" {
		return to, nil
	}
	p, err := w.Ledger.GetProject(ctx, d.ProjectID)
	if err != nil {
		return "", err
	}
	return p.CreatorAddress, nil
}

func (w *Worker) fail(ctx context.Context, d *domain.Donation, reason string) error {
	if err := w.Ledger.FailDonation(ctx, d.ID, reason); err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	return nil
}

func (w *Worker) HandleReconcile(ctx context.Context, _ *asynq.Task) error {
	drifts, err := w.Ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	w.Logger.Info().Int("corrected", len(drifts)).Msg("reconcile: totals checked")
	return nil
}

func sameAccount(network domain.Network, a, b string) bool {
	if network == domain.NetworkFlow {
		return chain.FlowAddress(a) == chain.FlowAddress(b)
	}
	return strings.EqualFold(a, b)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
