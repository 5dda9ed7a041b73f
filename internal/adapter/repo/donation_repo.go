package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

// DonationRepositoryPG implements domain.DonationRepository. Totals are only
// ever changed by Confirm and Reconcile, both inside a transaction.
type DonationRepositoryPG struct {
	sql infra.TxExecutor
}

func NewDonationRepository(sql infra.TxExecutor) *DonationRepositoryPG {
	return &DonationRepositoryPG{sql: sql}
}

func (r *DonationRepositoryPG) Create(ctx context.Context, donation *domain.Donation) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertDonation,
		donation.ProjectID,
		donation.DonorAddress,
		donation.Amount.UFix64(),
		donation.TransactionID,
		string(donation.Network),
	)
	created, err := scanDonation(row)
	switch {
	case err == nil:
		*donation = *created
		return nil
	case errors.Is(err, domain.ErrNotFound):
		// conflict on transaction_id: hand back the row that already owns it
		existing, lookupErr := scanDonation(r.sql.QueryRow(ctx, sqlinline.QSelectDonationByTx, donation.TransactionID))
		if lookupErr != nil {
			return fmt.Errorf("lookup duplicate donation: %w", lookupErr)
		}
		*donation = *existing
		return domain.ErrDuplicateOperation
	case infra.IsForeignKeyViolation(err):
		return fmt.Errorf("project %d: %w", donation.ProjectID, domain.ErrNotFound)
	default:
		return fmt.Errorf("insert donation: %w", err)
	}
}

func (r *DonationRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Donation, error) {
	return scanDonation(r.sql.QueryRow(ctx, sqlinline.QSelectDonationByID, id))
}

// Confirm locks the donation row, flips it to CONFIRMED, adds the amount to the
// project total with a server-side increment and completes reached milestones.
// A donation that is already confirmed is reported without changing anything.
func (r *DonationRepositoryPG) Confirm(ctx context.Context, id int64) (*domain.ConfirmResult, error) {
	var result *domain.ConfirmResult
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		d, err := scanDonation(tx.QueryRow(ctx, sqlinline.QLockDonation, id))
		if err != nil {
			return err
		}
		switch d.Status {
		case domain.DonationConfirmed:
			p, err := scanProject(tx.QueryRow(ctx, sqlinline.QSelectProjectByID, d.ProjectID))
			if err != nil {
				return err
			}
			result = &domain.ConfirmResult{Donation: *d, ProjectTotal: p.CurrentAmount, AlreadyConfirmed: true}
			return nil
		case domain.DonationFailed:
			return fmt.Errorf("%w: donation %d already failed", domain.ErrConflict, id)
		}

		var confirmedAt time.Time
		if err := tx.QueryRow(ctx, sqlinline.QMarkDonationConfirmed, id).Scan(&confirmedAt); err != nil {
			return fmt.Errorf("mark confirmed: %w", notFound(err))
		}
		d.Status = domain.DonationConfirmed
		d.ConfirmedAt = &confirmedAt

		var rawTotal string
		if err := tx.QueryRow(ctx, sqlinline.QIncrementProjectTotal, d.ProjectID, d.Amount.UFix64()).Scan(&rawTotal); err != nil {
			return fmt.Errorf("increment total: %w", notFound(err))
		}
		total, err := domain.ParseAmount(rawTotal)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, sqlinline.QAdvanceMilestones, d.ProjectID, total.UFix64())
		if err != nil {
			return fmt.Errorf("advance milestones: %w", err)
		}
		advanced, err := collectMilestones(rows)
		rows.Close()
		if err != nil {
			return err
		}
		var completed []domain.Milestone
		for _, m := range advanced {
			if m.Status == domain.MilestoneCompleted {
				completed = append(completed, m)
			}
		}

		result = &domain.ConfirmResult{Donation: *d, ProjectTotal: total, CompletedMilestones: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Fail marks a pending donation FAILED. Confirmed donations are never failed.
func (r *DonationRepositoryPG) Fail(ctx context.Context, id int64, reason string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailDonation, id, reason)
	if err != nil {
		return fmt.Errorf("fail donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: donation %d is not pending", domain.ErrConflict, id)
	}
	return nil
}

func (r *DonationRepositoryPG) ListByProject(ctx context.Context, projectID int64, limit int) ([]domain.Donation, error) {
	return r.list(ctx, sqlinline.QListDonationsByProject, projectID, clampLimit(limit))
}

func (r *DonationRepositoryPG) ListByDonor(ctx context.Context, address string, limit int) ([]domain.Donation, error) {
	return r.list(ctx, sqlinline.QListDonationsByDonor, address, clampLimit(limit))
}

// ListPending returns donations still awaiting verification that were created
// before olderThan, oldest first.
func (r *DonationRepositoryPG) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Donation, error) {
	return r.list(ctx, sqlinline.QListPendingDonations, olderThan, clampLimit(limit))
}

func (r *DonationRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Donation, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Reconcile recomputes project totals as the sum of confirmed donations and
// brings milestone progress in line with the corrected totals. Project rows
// are locked first so a concurrent Confirm either lands before the sums are
// read or waits for the reconcile to commit.
func (r *DonationRepositoryPG) Reconcile(ctx context.Context) ([]domain.TotalDrift, error) {
	var drifts []domain.TotalDrift
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QLockProjects); err != nil {
			return fmt.Errorf("lock projects: %w", err)
		}
		rows, err := tx.Query(ctx, sqlinline.QReconcileTotals)
		if err != nil {
			return fmt.Errorf("reconcile totals: %w", err)
		}
		for rows.Next() {
			var (
				drift           domain.TotalDrift
				stored, derived string
			)
			if err := rows.Scan(&drift.ProjectID, &stored, &derived); err != nil {
				rows.Close()
				return err
			}
			if drift.Stored, err = domain.ParseAmount(stored); err != nil {
				rows.Close()
				return err
			}
			if drift.Derived, err = domain.ParseAmount(derived); err != nil {
				rows.Close()
				return err
			}
			drifts = append(drifts, drift)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlinline.QReconcileMilestones); err != nil {
			return fmt.Errorf("reconcile milestones: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

const maxListLimit = 500

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

var _ domain.DonationRepository = (*DonationRepositoryPG)(nil)
