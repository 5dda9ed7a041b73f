package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

const voteUniqueConstraint = "milestone_votes_voter_key"

// VoteRepositoryPG implements domain.VoteRepository.
type VoteRepositoryPG struct {
	sql infra.TxExecutor
}

func NewVoteRepository(sql infra.TxExecutor) *VoteRepositoryPG {
	return &VoteRepositoryPG{sql: sql}
}

// Cast locks the milestone, records the weighted vote, re-tallies and settles
// the milestone when one side passes half of the project's confirmed total.
func (r *VoteRepositoryPG) Cast(ctx context.Context, vote *domain.MilestoneVote) (*domain.VoteResult, error) {
	var result *domain.VoteResult
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		m, err := scanMilestone(tx.QueryRow(ctx, sqlinline.QLockMilestone, vote.MilestoneID))
		if err != nil {
			return err
		}
		if m.Status != domain.MilestoneVoting {
			return fmt.Errorf("milestone %d is %s: %w", m.ID, m.Status, domain.ErrConflict)
		}

		created, err := scanVote(tx.QueryRow(ctx, sqlinline.QInsertMilestoneVote, m.ID, vote.VoterAddress, vote.Approve))
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("%s has no confirmed donations to project %d: %w", vote.VoterAddress, m.ProjectID, domain.ErrForbidden)
		case infra.IsUniqueViolation(err, voteUniqueConstraint):
			return fmt.Errorf("%s already voted on milestone %d: %w", vote.VoterAddress, m.ID, domain.ErrDuplicateOperation)
		case err != nil:
			return fmt.Errorf("insert vote: %w", err)
		}

		tally, err := scanTally(tx.QueryRow(ctx, sqlinline.QTallyMilestoneVotes, m.ID))
		if err != nil {
			return fmt.Errorf("tally votes: %w", err)
		}
		status := tally.Outcome()
		if status != m.Status {
			if _, err := scanMilestone(tx.QueryRow(ctx, sqlinline.QUpdateMilestoneStatus, m.ID, string(status))); err != nil {
				return fmt.Errorf("settle milestone: %w", err)
			}
		}
		*vote = *created
		result = &domain.VoteResult{Vote: *created, Tally: *tally, Status: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *VoteRepositoryPG) Tally(ctx context.Context, milestoneID int64) (*domain.VoteTally, error) {
	return scanTally(r.sql.QueryRow(ctx, sqlinline.QTallyMilestoneVotes, milestoneID))
}

func (r *VoteRepositoryPG) ListByMilestone(ctx context.Context, milestoneID int64) ([]domain.MilestoneVote, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListMilestoneVotes, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MilestoneVote, 0)
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	return items, rows.Err()
}

var _ domain.VoteRepository = (*VoteRepositoryPG)(nil)
