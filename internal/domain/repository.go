package domain

import (
	"context"
	"time"
)

// ProjectRepository persists projects.
type ProjectRepository interface {
	// Create stores the project and project.Milestones atomically; on error
	// nothing is written.
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id int64) (*Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]Project, error)
	ListTitles(ctx context.Context, limit int) ([]Project, error)
	UpdateStatus(ctx context.Context, id int64, status ProjectStatus) (*Project, error)
}

// MilestoneRepository persists milestones.
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *Milestone) error
	GetByID(ctx context.Context, id int64) (*Milestone, error)
	ListByProject(ctx context.Context, projectID int64) ([]Milestone, error)
	UpdateStatus(ctx context.Context, id int64, status MilestoneStatus) (*Milestone, error)
}

// VoteRepository persists donor votes on milestones.
type VoteRepository interface {
	// Cast stores the vote weighted by the voter's confirmed donations to the
	// project and settles the milestone when the tally decides it, in one
	// transaction. It returns ErrConflict when the milestone is not in
	// VOTING, ErrForbidden when the voter has no confirmed donations and
	// ErrDuplicateOperation when the voter already voted.
	Cast(ctx context.Context, vote *MilestoneVote) (*VoteResult, error)
	Tally(ctx context.Context, milestoneID int64) (*VoteTally, error)
	ListByMilestone(ctx context.Context, milestoneID int64) ([]MilestoneVote, error)
}

// DonationRepository persists donations and owns the total bookkeeping.
type DonationRepository interface {
	// Create stores a PENDING donation. A reused transaction id returns the
	// existing row together with ErrDuplicateOperation.
	Create(ctx context.Context, donation *Donation) error
	GetByID(ctx context.Context, id int64) (*Donation, error)
	// Confirm marks the donation CONFIRMED and adds its amount to the project
	// total in one transaction. Confirming twice changes nothing.
	Confirm(ctx context.Context, id int64) (*ConfirmResult, error)
	Fail(ctx context.Context, id int64, reason string) error
	ListByProject(ctx context.Context, projectID int64, limit int) ([]Donation, error)
	ListByDonor(ctx context.Context, address string, limit int) ([]Donation, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]Donation, error)
	// Reconcile re-derives every project total from confirmed donations.
	Reconcile(ctx context.Context) ([]TotalDrift, error)
}

// WalletSessionRepository persists connected wallet sessions.
type WalletSessionRepository interface {
	Create(ctx context.Context, session *WalletSession) error
	Get(ctx context.Context, id string) (*WalletSession, error)
	Revoke(ctx context.Context, id string) error
}

// StatsRepository reads aggregates.
type StatsRepository interface {
	Summary(ctx context.Context) (*Stats, error)
	Leaderboard(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error)
}
