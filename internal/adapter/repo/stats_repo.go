package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

type StatsRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewStatsRepository(sql infra.SQLExecutor) *StatsRepositoryPG {
	return &StatsRepositoryPG{sql: sql}
}

func (r *StatsRepositoryPG) Summary(ctx context.Context) (*domain.Stats, error) {
	var (
		s      domain.Stats
		raised string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QStatsSummary).Scan(
		&s.TotalProjects,
		&s.ActiveProjects,
		&s.TotalDonations,
		&raised,
		&s.UniqueDonors,
		&s.PendingDonations,
	)
	if err != nil {
		return nil, fmt.Errorf("stats summary: %w", err)
	}
	if s.TotalRaised, err = domain.ParseAmount(raised); err != nil {
		return nil, err
	}
	return &s, nil
}

// Leaderboard ranks donors by confirmed total since the given time. A zero
// since means all time.
func (r *StatsRepositoryPG) Leaderboard(ctx context.Context, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QLeaderboard, nullableTime(since), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var (
			e     domain.LeaderboardEntry
			total string
		)
		if err := rows.Scan(&e.DonorAddress, &total, &e.DonationCount, &e.LastDonation); err != nil {
			return nil, err
		}
		if e.TotalDonated, err = domain.ParseAmount(total); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ domain.StatsRepository = (*StatsRepositoryPG)(nil)
