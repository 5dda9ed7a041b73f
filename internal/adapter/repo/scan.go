package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*domain.Project, error) {
	var (
		p                domain.Project
		target, current  string
		status, category string
		endDate          *time.Time
	)
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&target,
		&current,
		&status,
		&p.CreatorAddress,
		&category,
		&p.ImageURL,
		&endDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.TargetAmount, err = domain.ParseAmount(target); err != nil {
		return nil, fmt.Errorf("project %d target: %w", p.ID, err)
	}
	if p.CurrentAmount, err = domain.ParseAmount(current); err != nil {
		return nil, fmt.Errorf("project %d current: %w", p.ID, err)
	}
	p.Status = domain.ProjectStatus(status)
	p.Category = domain.Category(category)
	if endDate != nil {
		p.EndDate = *endDate
	}
	return &p, nil
}

func scanMilestone(row scanner) (*domain.Milestone, error) {
	var (
		m                 domain.Milestone
		required, current string
		status            string
	)
	if err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.Description,
		&m.Percentage,
		&required,
		&current,
		&status,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	var err error
	if m.RequiredAmount, err = domain.ParseAmount(required); err != nil {
		return nil, fmt.Errorf("milestone %d required: %w", m.ID, err)
	}
	if m.CurrentAmount, err = domain.ParseAmount(current); err != nil {
		return nil, fmt.Errorf("milestone %d current: %w", m.ID, err)
	}
	m.Status = domain.MilestoneStatus(status)
	return &m, nil
}

func scanDonation(row scanner) (*domain.Donation, error) {
	var (
		d               domain.Donation
		amount          string
		network, status string
	)
	if err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.DonorAddress,
		&amount,
		&d.TransactionID,
		&network,
		&status,
		&d.FailureReason,
		&d.CreatedAt,
		&d.ConfirmedAt,
	); err != nil {
		return nil, notFound(err)
	}
	var err error
	if d.Amount, err = domain.ParseAmount(amount); err != nil {
		return nil, fmt.Errorf("donation %d amount: %w", d.ID, err)
	}
	d.Network = domain.Network(network)
	d.Status = domain.DonationStatus(status)
	return &d, nil
}

func notFound(err error) error {
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	return err
}

// escapeLike neutralises LIKE wildcards so user search text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanVote(row scanner) (*domain.MilestoneVote, error) {
	var (
		v      domain.MilestoneVote
		weight string
	)
	if err := row.Scan(&v.ID, &v.MilestoneID, &v.VoterAddress, &v.Approve, &weight, &v.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if v.Weight, err = domain.ParseAmount(weight); err != nil {
		return nil, fmt.Errorf("vote %d weight: %w", v.ID, err)
	}
	return &v, nil
}

func scanTally(row scanner) (*domain.VoteTally, error) {
	var (
		t                         domain.VoteTally
		approve, reject, eligible string
		voters                    int64
	)
	if err := row.Scan(&approve, &reject, &voters, &eligible); err != nil {
		return nil, notFound(err)
	}
	var err error
	if t.Approve, err = domain.ParseAmount(approve); err != nil {
		return nil, fmt.Errorf("tally approve: %w", err)
	}
	if t.Reject, err = domain.ParseAmount(reject); err != nil {
		return nil, fmt.Errorf("tally reject: %w", err)
	}
	if t.Eligible, err = domain.ParseAmount(eligible); err != nil {
		return nil, fmt.Errorf("tally eligible: %w", err)
	}
	t.Voters = int(voters)
	return &t, nil
}
