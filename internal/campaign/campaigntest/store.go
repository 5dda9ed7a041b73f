// Package campaigntest provides in-memory repositories with the same
// defaults and total bookkeeping as the Postgres adapters.
package campaigntest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

// Store holds every table. Its repository views share one lock.
type Store struct {
	mu         sync.Mutex
	projects   map[int64]*domain.Project
	milestones map[int64]*domain.Milestone
	donations  map[int64]*domain.Donation
	sessions   map[string]*domain.WalletSession
	votes      map[int64]*domain.MilestoneVote
	nextID     int64

	failMilestone string
}

func New() *Store {
	return &Store{
		projects:   map[int64]*domain.Project{},
		milestones: map[int64]*domain.Milestone{},
		donations:  map[int64]*domain.Donation{},
		sessions:   map[string]*domain.WalletSession{},
		votes:      map[int64]*domain.MilestoneVote{},
	}
}

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Store) Projects() domain.ProjectRepository { return memProjects{m} }
func (m *Store) Milestones() domain.MilestoneRepository { return memMilestones{m} }
func (m *Store) Donations() domain.DonationRepository { return memDonations{m} }
func (m *Store) Sessions() domain.WalletSessionRepository { return memSessions{m} }
func (m *Store) Stats() domain.StatsRepository { return memStats{m} }
func (m *Store) Votes() domain.VoteRepository { return memVotes{m} }

// ProjectCount and DonationCount let tests assert nothing was written.
func (m *Store) ProjectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects)
}

func (m *Store) DonationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.donations)
}

// SetCurrentAmount corrupts a stored total to exercise reconciliation.
func (m *Store) SetCurrentAmount(projectID int64, amount domain.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[projectID]; ok {
		p.CurrentAmount = amount
	}
}

// FailMilestone makes creating a milestone titled title fail.
func (m *Store) FailMilestone(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMilestone = title
}

// PutSession stores s as is, for tests that need a specific session.
func (m *Store) PutSession(s domain.WalletSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

type memProjects struct{ *Store }
type memMilestones struct{ *Store }
type memDonations struct{ *Store }
type memSessions struct{ *Store }
type memStats struct{ *Store }
type memVotes struct{ *Store }

func (r memProjects) Create(_ context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ms := range p.Milestones {
		if r.failMilestone != "" && ms.Title == r.failMilestone {
			return fmt.Errorf("milestone %q: insert milestone: check constraint", ms.Title)
		}
	}
	p.ID = r.id()
	p.CurrentAmount = 0
	p.Status = domain.ProjectActive
	p.CreatedAt = time.Now()
	for i := range p.Milestones {
		ms := &p.Milestones[i]
		ms.ID = r.id()
		ms.ProjectID = p.ID
		ms.Status = domain.MilestonePending
		cp := *ms
		r.milestones[ms.ID] = &cp
	}
	cp := *p
	cp.Milestones = nil
	r.projects[p.ID] = &cp
	return nil
}

func (r memProjects) GetByID(_ context.Context, id int64) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memProjects) List(_ context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Project
	for id := int64(1); id <= r.nextID; id++ {
		p, ok := r.projects[id]
		if !ok {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r memProjects) ListTitles(ctx context.Context, limit int) ([]domain.Project, error) {
	return r.List(ctx, domain.ProjectFilter{})
}

func (r memProjects) UpdateStatus(_ context.Context, id int64, status domain.ProjectStatus) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Status = status
	cp := *p
	return &cp, nil
}

func (r memMilestones) Create(_ context.Context, ms *domain.Milestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[ms.ProjectID]; !ok {
		return domain.ErrNotFound
	}
	if r.failMilestone != "" && ms.Title == r.failMilestone {
		return fmt.Errorf("insert milestone: check constraint")
	}
	ms.ID = r.id()
	ms.Status = domain.MilestonePending
	cp := *ms
	r.milestones[ms.ID] = &cp
	return nil
}

func (r memMilestones) GetByID(_ context.Context, id int64) (*domain.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.milestones[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (r memMilestones) ListByProject(_ context.Context, projectID int64) ([]domain.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Milestone{}
	for id := int64(1); id <= r.nextID; id++ {
		if ms, ok := r.milestones[id]; ok && ms.ProjectID == projectID {
			out = append(out, *ms)
		}
	}
	return out, nil
}

func (r memMilestones) UpdateStatus(_ context.Context, id int64, status domain.MilestoneStatus) (*domain.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.milestones[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	ms.Status = status
	cp := *ms
	return &cp, nil
}

func (r memDonations) Create(_ context.Context, d *domain.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.donations {
		if existing.TransactionID == d.TransactionID {
			*d = *existing
			return domain.ErrDuplicateOperation
		}
	}
	d.ID = r.id()
	d.Status = domain.DonationPending
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	r.donations[d.ID] = &cp
	return nil
}

func (r memDonations) GetByID(_ context.Context, id int64) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDonations) Confirm(_ context.Context, id int64) (*domain.ConfirmResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := r.projects[d.ProjectID]
	if d.Status == domain.DonationConfirmed {
		return &domain.ConfirmResult{Donation: *d, ProjectTotal: p.CurrentAmount, AlreadyConfirmed: true}, nil
	}
	if d.Status == domain.DonationFailed {
		return nil, domain.ErrConflict
	}
	d.Status = domain.DonationConfirmed
	confirmed := time.Now()
	d.ConfirmedAt = &confirmed
	p.CurrentAmount += d.Amount
	res := &domain.ConfirmResult{Donation: *d, ProjectTotal: p.CurrentAmount}
	for _, ms := range r.milestones {
		if ms.ProjectID == p.ID && ms.Status.Open() && ms.RequiredAmount <= p.CurrentAmount {
			ms.Status = domain.MilestoneCompleted
			res.CompletedMilestones = append(res.CompletedMilestones, *ms)
		}
	}
	return res, nil
}

func (r memDonations) Fail(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok || d.Status != domain.DonationPending {
		return domain.ErrConflict
	}
	d.Status = domain.DonationFailed
	d.FailureReason = reason
	return nil
}

func (r memDonations) ListByProject(_ context.Context, projectID int64, _ int) ([]domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Donation{}
	for _, d := range r.donations {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDonations) ListByDonor(_ context.Context, address string, _ int) ([]domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Donation{}
	for _, d := range r.donations {
		if strings.EqualFold(d.DonorAddress, address) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDonations) ListPending(_ context.Context, olderThan time.Time, _ int) ([]domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Donation{}
	for _, d := range r.donations {
		if d.Status == domain.DonationPending {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDonations) Reconcile(context.Context) ([]domain.TotalDrift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var drifts []domain.TotalDrift
	for _, p := range r.projects {
		var sum domain.Amount
		for _, d := range r.donations {
			if d.ProjectID == p.ID && d.Status == domain.DonationConfirmed {
				sum += d.Amount
			}
		}
		if sum != p.CurrentAmount {
			drifts = append(drifts, domain.TotalDrift{ProjectID: p.ID, Stored: p.CurrentAmount, Derived: sum})
			p.CurrentAmount = sum
		}
	}
	return drifts, nil
}

func (r memSessions) Create(_ context.Context, s *domain.WalletSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r memSessions) Get(_ context.Context, id string) (*domain.WalletSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSessions) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.RevokedAt == nil {
		t := time.Now()
		s.RevokedAt = &t
	}
	return nil
}

func (r memStats) Summary(context.Context) (*domain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &domain.Stats{TotalProjects: int64(len(r.projects))}
	for _, p := range r.projects {
		if p.Status == domain.ProjectActive {
			st.ActiveProjects++
		}
	}
	donors := map[string]struct{}{}
	for _, d := range r.donations {
		switch d.Status {
		case domain.DonationConfirmed:
			st.TotalDonations++
			st.TotalRaised += d.Amount
			donors[strings.ToLower(d.DonorAddress)] = struct{}{}
		case domain.DonationPending:
			st.PendingDonations++
		}
	}
	st.UniqueDonors = int64(len(donors))
	return st, nil
}

func (r memStats) Leaderboard(_ context.Context, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDonor := map[string]*domain.LeaderboardEntry{}
	for _, d := range r.donations {
		if d.Status != domain.DonationConfirmed || d.CreatedAt.Before(since) {
			continue
		}
		e, ok := byDonor[d.DonorAddress]
		if !ok {
			e = &domain.LeaderboardEntry{DonorAddress: d.DonorAddress}
			byDonor[d.DonorAddress] = e
		}
		e.TotalDonated += d.Amount
		e.DonationCount++
		if d.CreatedAt.After(e.LastDonation) {
			e.LastDonation = d.CreatedAt
		}
	}
	out := make([]domain.LeaderboardEntry, 0, len(byDonor))
	for _, e := range byDonor {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalDonated != out[j].TotalDonated {
			return out[i].TotalDonated > out[j].TotalDonated
		}
		return out[i].DonorAddress < out[j].DonorAddress
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (r memVotes) Cast(_ context.Context, v *domain.MilestoneVote) (*domain.VoteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.milestones[v.MilestoneID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ms.Status != domain.MilestoneVoting {
		return nil, fmt.Errorf("milestone %d is %s: %w", ms.ID, ms.Status, domain.ErrConflict)
	}
	for _, existing := range r.votes {
		if existing.MilestoneID == ms.ID && strings.EqualFold(existing.VoterAddress, v.VoterAddress) {
			return nil, fmt.Errorf("%s already voted on milestone %d: %w", v.VoterAddress, ms.ID, domain.ErrDuplicateOperation)
		}
	}
	var weight domain.Amount
	for _, d := range r.donations {
		if d.ProjectID == ms.ProjectID && d.Status == domain.DonationConfirmed && strings.EqualFold(d.DonorAddress, v.VoterAddress) {
			weight += d.Amount
		}
	}
	if weight <= 0 {
		return nil, fmt.Errorf("%s has no confirmed donations to project %d: %w", v.VoterAddress, ms.ProjectID, domain.ErrForbidden)
	}
	v.ID = r.id()
	v.VoterAddress = strings.ToLower(v.VoterAddress)
	v.Weight = weight
	v.CreatedAt = time.Now()
	cp := *v
	r.votes[v.ID] = &cp

	tally := r.tally(ms)
	ms.Status = tally.Outcome()
	return &domain.VoteResult{Vote: cp, Tally: tally, Status: ms.Status}, nil
}

func (r memVotes) tally(ms *domain.Milestone) domain.VoteTally {
	t := domain.VoteTally{Eligible: r.projects[ms.ProjectID].CurrentAmount}
	for _, v := range r.votes {
		if v.MilestoneID != ms.ID {
			continue
		}
		t.Voters++
		if v.Approve {
			t.Approve += v.Weight
		} else {
			t.Reject += v.Weight
		}
	}
	return t
}

func (r memVotes) Tally(_ context.Context, milestoneID int64) (*domain.VoteTally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.milestones[milestoneID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := r.tally(ms)
	return &t, nil
}

func (r memVotes) ListByMilestone(_ context.Context, milestoneID int64) ([]domain.MilestoneVote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.MilestoneVote{}
	for id := int64(1); id <= r.nextID; id++ {
		if v, ok := r.votes[id]; ok && v.MilestoneID == milestoneID {
			out = append(out, *v)
		}
	}
	return out, nil
}
