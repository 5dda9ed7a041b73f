package repo

import (
	"context"
	"fmt"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

// ProjectRepositoryPG implements domain.ProjectRepository on Postgres.
type ProjectRepositoryPG struct {
	sql infra.TxExecutor
}

func NewProjectRepository(sql infra.TxExecutor) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{sql: sql}
}

// Create inserts the project and its milestones in one transaction. Current
// amount and status are always set by the database to 0 and ACTIVE regardless
// of what the caller supplied.
func (r *ProjectRepositoryPG) Create(ctx context.Context, project *domain.Project) error {
	milestones := project.Milestones
	return r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		row := tx.QueryRow(ctx, sqlinline.QInsertProject,
			project.Title,
			project.Description,
			project.TargetAmount.UFix64(),
			project.CreatorAddress,
			string(project.Category),
			project.ImageURL,
			nullableTime(project.EndDate),
		)
		created, err := scanProject(row)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for _, m := range milestones {
			m.ProjectID = created.ID
			if err := insertMilestone(ctx, tx, &m); err != nil {
				return fmt.Errorf("milestone %q: %w", m.Title, err)
			}
			created.Milestones = append(created.Milestones, m)
		}
		*project = *created
		return nil
	})
}

func (r *ProjectRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	p, err := scanProject(r.sql.QueryRow(ctx, sqlinline.QSelectProjectByID, id))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepositoryPG) List(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	f := filter.Normalize()
	rows, err := r.sql.Query(ctx, sqlinline.QListProjects,
		string(f.Category),
		string(f.Status),
		escapeLike(f.Search),
		f.Creator,
		string(f.Sort),
		f.Limit,
		f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListTitles returns id and title of recent active projects for suggestion
// matching.
func (r *ProjectRepositoryPG) ListTitles(ctx context.Context, limit int) ([]domain.Project, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListProjectTitles, limit)
	if err != nil {
		return nil, fmt.Errorf("list project titles: %w", err)
	}
	defer rows.Close()

	var items []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Title); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *ProjectRepositoryPG) UpdateStatus(ctx context.Context, id int64, status domain.ProjectStatus) (*domain.Project, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: project status %q", domain.ErrInvalidInput, status)
	}
	return scanProject(r.sql.QueryRow(ctx, sqlinline.QUpdateProjectStatus, id, string(status)))
}

var _ domain.ProjectRepository = (*ProjectRepositoryPG)(nil)
