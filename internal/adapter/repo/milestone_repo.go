package repo

import (
	"context"
	"fmt"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

type MilestoneRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewMilestoneRepository(sql infra.SQLExecutor) *MilestoneRepositoryPG {
	return &MilestoneRepositoryPG{sql: sql}
}

// Create inserts a milestone. Its current amount starts at the project's
// current total (capped at the required amount) so milestones added late are
// already completed when funding has passed them.
func (r *MilestoneRepositoryPG) Create(ctx context.Context, milestone *domain.Milestone) error {
	return insertMilestone(ctx, r.sql, milestone)
}

func insertMilestone(ctx context.Context, q infra.SQLExecutor, milestone *domain.Milestone) error {
	row := q.QueryRow(ctx, sqlinline.QInsertMilestone,
		milestone.ProjectID,
		milestone.Title,
		milestone.Description,
		milestone.Percentage,
		milestone.RequiredAmount.UFix64(),
	)
	created, err := scanMilestone(row)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	*milestone = *created
	return nil
}

func (r *MilestoneRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Milestone, error) {
	return scanMilestone(r.sql.QueryRow(ctx, sqlinline.QSelectMilestoneByID, id))
}

func (r *MilestoneRepositoryPG) ListByProject(ctx context.Context, projectID int64) ([]domain.Milestone, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListMilestonesByProject, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()
	return collectMilestones(rows)
}

func (r *MilestoneRepositoryPG) UpdateStatus(ctx context.Context, id int64, status domain.MilestoneStatus) (*domain.Milestone, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: milestone status %q", domain.ErrInvalidInput, status)
	}
	return scanMilestone(r.sql.QueryRow(ctx, sqlinline.QUpdateMilestoneStatus, id, string(status)))
}

type rowIterator interface {
	scanner
	Next() bool
	Err() error
}

func collectMilestones(rows rowIterator) ([]domain.Milestone, error) {
	items := make([]domain.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ domain.MilestoneRepository = (*MilestoneRepositoryPG)(nil)
