// Package campaign holds the project, milestone and donation rules that sit
// between the HTTP handlers and the repositories.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
)

const (
	maxTitleLen       = 120
	maxDescriptionLen = 10_000
	maxTxIDLen        = 128
)

// Verifier schedules on-chain verification of a pending donation.
type Verifier interface {
	EnqueueVerify(ctx context.Context, donationID int64) error
}

// Service coordinates the campaign repositories.
type Service struct {
	Projects   domain.ProjectRepository
	Milestones domain.MilestoneRepository
	Donations  domain.DonationRepository
	Stats      domain.StatsRepository
	Votes      domain.VoteRepository

	// Verifier is optional. Without one, donations are confirmed as soon as
	// they are recorded.
	Verifier Verifier
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) publisher() events.Publisher {
	if s.Events == nil {
		return events.Nop{}
	}
	return s.Events
}

// MilestoneInput describes a milestone at a percentage of the project target.
type MilestoneInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Percentage  int    `json:"percentage"`
}

// CreateProjectInput is the caller supplied part of a new project.
type CreateProjectInput struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	TargetAmount domain.Amount    `json:"target_amount"`
	Category     string           `json:"category"`
	ImageURL     string           `json:"image_url"`
	EndDate      time.Time        `json:"end_date"`
	Milestones   []MilestoneInput `json:"milestones"`
}

func requireWallet(session *domain.WalletSession, now time.Time) error {
	if session == nil || !session.Active(now) || session.Address == "" {
		return domain.ErrWalletRequired
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", invalid("title longer than %d characters", maxTitleLen)
	}
	return title, nil
}

func validateMilestone(in MilestoneInput) (MilestoneInput, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return in, fmt.Errorf("milestone: %w", err)
	}
	in.Title = title
	in.Description = strings.TrimSpace(in.Description)
	if in.Percentage < 1 || in.Percentage > 100 {
		return in, invalid("milestone percentage must be between 1 and 100")
	}
	return in, nil
}

// CreateProject stores a new ACTIVE project owned by the session's wallet,
// together with any milestones, and announces it.
func (s *Service) CreateProject(ctx context.Context, session *domain.WalletSession, in CreateProjectInput) (*domain.Project, error) {
	now := s.now()
	if err := requireWallet(session, now); err != nil {
		return nil, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return nil, invalid("description longer than %d characters", maxDescriptionLen)
	}
	if !in.TargetAmount.IsPositive() {
		return nil, invalid("target amount must be positive")
	}
	category, ok := domain.ParseCategory(in.Category)
	if !ok {
		return nil, invalid("unknown category %q", in.Category)
	}
	if in.EndDate.IsZero() || !in.EndDate.After(now) {
		return nil, invalid("end date must be in the future")
	}
	milestones := make([]MilestoneInput, 0, len(in.Milestones))
	for _, m := range in.Milestones {
		vm, err := validateMilestone(m)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, vm)
	}

	project := &domain.Project{
		Title:          title,
		Description:    description,
		TargetAmount:   in.TargetAmount,
		CreatorAddress: session.Address,
		Category:       category,
		ImageURL:       strings.TrimSpace(in.ImageURL),
		EndDate:        in.EndDate.UTC(),
	}
	for _, m := range milestones {
		project.Milestones = append(project.Milestones, domain.Milestone{
			Title:          m.Title,
			Description:    m.Description,
			Percentage:     m.Percentage,
			RequiredAmount: in.TargetAmount.PercentOf(m.Percentage),
		})
	}
	if err := s.Projects.Create(ctx, project); err != nil {
		return nil, err
	}

	evt := events.ProjectEvent{
		ProjectID:      project.ID,
		Title:          project.Title,
		Description:    project.Description,
		Category:       project.Category,
		TargetAmount:   project.TargetAmount,
		CreatorAddress: project.CreatorAddress,
		EndDate:        project.EndDate,
		OccurredAt:     now,
	}
	if err := s.publisher().PublishProject(ctx, evt); err != nil {
		s.Logger.Warn().Err(err).Int64("project_id", project.ID).Msg("publish project event")
	}
	s.Logger.Info().Int64("project_id", project.ID).Str("creator", project.CreatorAddress).Msg("project created")
	return project, nil
}

// GetProject returns the project with its milestones.
func (s *Service) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	project, err := s.Projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	milestones, err := s.Milestones.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Milestones = milestones
	return project, nil
}

// ListResult is a page of projects plus title suggestions when a search
// matched nothing.
type ListResult struct {
	Items       []domain.Project `json:"items"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

func (s *Service) ListProjects(ctx context.Context, filter domain.ProjectFilter) (*ListResult, error) {
	if filter.Category != "" {
		c, ok := domain.ParseCategory(string(filter.Category))
		if !ok {
			return nil, invalid("unknown category %q", filter.Category)
		}
		filter.Category = c
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("unknown status %q", filter.Status)
	}
	filter = filter.Normalize()

	items, err := s.Projects.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	res := &ListResult{Items: items}
	if len(items) == 0 && filter.Search != "" {
		titles, err := s.Projects.ListTitles(ctx, suggestionPool)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("load titles for suggestions")
		} else {
			res.Suggestions = Suggest(filter.Search, titles, maxSuggestions)
		}
	}
	return res, nil
}

func (s *Service) authorizeCreator(ctx context.Context, session *domain.WalletSession, projectID int64) (*domain.Project, error) {
	if err := requireWallet(session, s.now()); err != nil {
		return nil, err
	}
	project, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(project.CreatorAddress, session.Address) {
		return nil, fmt.Errorf("%w: only the project creator may change it", domain.ErrForbidden)
	}
	return project, nil
}

// UpdateProjectStatus lets the creator complete or cancel a project.
func (s *Service) UpdateProjectStatus(ctx context.Context, session *domain.WalletSession, projectID int64, status domain.ProjectStatus) (*domain.Project, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	if _, err := s.authorizeCreator(ctx, session, projectID); err != nil {
		return nil, err
	}
	return s.Projects.UpdateStatus(ctx, projectID, status)
}

// SetProjectStatus is the administrative variant without an ownership check.
func (s *Service) SetProjectStatus(ctx context.Context, projectID int64, status domain.ProjectStatus) (*domain.Project, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	return s.Projects.UpdateStatus(ctx, projectID, status)
}

func (s *Service) AddMilestone(ctx context.Context, session *domain.WalletSession, projectID int64, in MilestoneInput) (*domain.Milestone, error) {
	in, err := validateMilestone(in)
	if err != nil {
		return nil, err
	}
	project, err := s.authorizeCreator(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	m := &domain.Milestone{
		ProjectID:      projectID,
		Title:          in.Title,
		Description:    in.Description,
		Percentage:     in.Percentage,
		RequiredAmount: project.TargetAmount.PercentOf(in.Percentage),
	}
	if err := s.Milestones.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMilestones(ctx context.Context, projectID int64) ([]domain.Milestone, error) {
	if _, err := s.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.Milestones.ListByProject(ctx, projectID)
}

func (s *Service) UpdateMilestoneStatus(ctx context.Context, session *domain.WalletSession, milestoneID int64, status domain.MilestoneStatus) (*domain.Milestone, error) {
	if !status.Valid() {
		return nil, invalid("unknown milestone status %q", status)
	}
	if status == domain.MilestoneRejected {
		return nil, invalid("milestones are rejected by donor vote only")
	}
	m, err := s.Milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	project, err := s.authorizeCreator(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}
	switch {
	case m.Status == domain.MilestoneVoting || m.Status == domain.MilestoneRejected:
		return nil, fmt.Errorf("milestone %d is %s and settled by donor vote: %w", m.ID, m.Status, domain.ErrConflict)
	case status == domain.MilestoneVoting && !m.Status.Open():
		return nil, fmt.Errorf("milestone %d is %s: %w", m.ID, m.Status, domain.ErrConflict)
	case status == domain.MilestoneVoting && project.CurrentAmount <= 0:
		return nil, fmt.Errorf("project %d has no confirmed donors to vote: %w", project.ID, domain.ErrConflict)
	}
	return s.Milestones.UpdateStatus(ctx, milestoneID, status)
}

// CastVote records the session wallet's approval or rejection of a milestone
// in VOTING. The vote weighs as much as the wallet's confirmed donations to
// the project; a wallet votes once per milestone.
func (s *Service) CastVote(ctx context.Context, session *domain.WalletSession, milestoneID int64, approve bool) (*domain.VoteResult, error) {
	if err := requireWallet(session, s.now()); err != nil {
		return nil, err
	}
	res, err := s.Votes.Cast(ctx, &domain.MilestoneVote{
		MilestoneID:  milestoneID,
		VoterAddress: session.Address,
		Approve:      approve,
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info().
		Int64("milestone_id", milestoneID).
		Str("voter", session.Address).
		Bool("approve", approve).
		Str("weight", res.Vote.Weight.String()).
		Str("status", string(res.Status)).
		Msg("milestone vote cast")
	return res, nil
}

// MilestoneVotes is a milestone with its votes and their tally.
type MilestoneVotes struct {
	Milestone domain.Milestone       `json:"milestone"`
	Tally     domain.VoteTally       `json:"tally"`
	Approval  float64                `json:"approval_percentage"`
	Votes     []domain.MilestoneVote `json:"votes"`
}

func (s *Service) ListVotes(ctx context.Context, milestoneID int64) (*MilestoneVotes, error) {
	m, err := s.Milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	tally, err := s.Votes.Tally(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	votes, err := s.Votes.ListByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	return &MilestoneVotes{Milestone: *m, Tally: *tally, Approval: tally.ApprovalPercent(), Votes: votes}, nil
}

// DonationInput is what a donor submits after sending the chain transaction.
type DonationInput struct {
	Amount        domain.Amount `json:"amount"`
	TransactionID string        `json:"transaction_id"`
	Network       string        `json:"network"`
}

// RecordDonation validates and stores a PENDING donation, then either hands it
// to the verifier or confirms it directly. Validation failures change nothing.
// Resubmitting a known transaction id returns the existing donation.
func (s *Service) RecordDonation(ctx context.Context, session *domain.WalletSession, projectID int64, in DonationInput) (*domain.Donation, error) {
	now := s.now()
	if !in.Amount.IsPositive() {
		return nil, invalid("donation amount must be greater than zero")
	}
	if err := requireWallet(session, now); err != nil {
		return nil, err
	}
	txID := strings.TrimSpace(in.TransactionID)
	if txID == "" || len(txID) > maxTxIDLen {
		return nil, invalid("transaction id is required")
	}
	network, ok := domain.ParseNetwork(in.Network)
	if !ok {
		return nil, invalid("unknown network %q", in.Network)
	}

	project, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.Open(now) {
		return nil, fmt.Errorf("%w: project %d is not accepting donations", domain.ErrConflict, projectID)
	}

	donation := &domain.Donation{
		ProjectID:     projectID,
		DonorAddress:  session.Address,
		Amount:        in.Amount,
		TransactionID: txID,
		Network:       network,
	}
	if err := s.Donations.Create(ctx, donation); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			if donation.ProjectID != projectID {
				return nil, fmt.Errorf("%w: transaction already recorded for another project", domain.ErrConflict)
			}
			return donation, err
		}
		return nil, err
	}
	s.Metrics.DonationRecorded(string(network))
	s.Logger.Info().
		Int64("donation_id", donation.ID).
		Int64("project_id", projectID).
		Str("amount", donation.Amount.String()).
		Str("tx", txID).
		Msg("donation recorded")

	if s.Verifier != nil {
		if err := s.Verifier.EnqueueVerify(ctx, donation.ID); err != nil {
			// the donation stays PENDING and the worker's sweep picks it up
			s.Logger.Error().Err(err).Int64("donation_id", donation.ID).Msg("enqueue verification")
		}
		return donation, nil
	}

	res, err := s.ConfirmDonation(ctx, donation.ID)
	if err != nil {
		return nil, err
	}
	return &res.Donation, nil
}

// ConfirmDonation counts a pending donation towards its project and publishes
// the confirmation. Repeated calls are harmless.
func (s *Service) ConfirmDonation(ctx context.Context, donationID int64) (*domain.ConfirmResult, error) {
	res, err := s.Donations.Confirm(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if res.AlreadyConfirmed {
		return res, nil
	}
	s.Metrics.DonationConfirmed(res.Donation.Amount.Float64())

	evt := events.DonationEvent{
		DonationID:    res.Donation.ID,
		ProjectID:     res.Donation.ProjectID,
		DonorAddress:  res.Donation.DonorAddress,
		Amount:        res.Donation.Amount,
		TransactionID: res.Donation.TransactionID,
		Network:       string(res.Donation.Network),
		ProjectTotal:  res.ProjectTotal,
		OccurredAt:    s.now(),
	}
	for _, m := range res.CompletedMilestones {
		evt.CompletedMilestones = append(evt.CompletedMilestones, m.Title)
	}
	if project, err := s.Projects.GetByID(ctx, res.Donation.ProjectID); err == nil {
		evt.ProjectTitle = project.Title
		evt.TargetAmount = project.TargetAmount
	}
	if err := s.publisher().PublishDonation(ctx, evt); err != nil {
		s.Logger.Warn().Err(err).Int64("donation_id", donationID).Msg("publish donation event")
	}
	s.Logger.Info().
		Int64("donation_id", donationID).
		Str("project_total", res.ProjectTotal.String()).
		Int("milestones_completed", len(res.CompletedMilestones)).
		Msg("donation confirmed")
	return res, nil
}

// FailDonation records that verification rejected the donation.
func (s *Service) FailDonation(ctx context.Context, donationID int64, reason string) error {
	if err := s.Donations.Fail(ctx, donationID, reason); err != nil {
		return err
	}
	s.Metrics.DonationFailed()
	s.Logger.Warn().Int64("donation_id", donationID).Str("reason", reason).Msg("donation failed")
	return nil
}

func (s *Service) GetDonation(ctx context.Context, id int64) (*domain.Donation, error) {
	return s.Donations.GetByID(ctx, id)
}

func (s *Service) ListDonations(ctx context.Context, projectID int64, limit int) ([]domain.Donation, error) {
	if _, err := s.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.Donations.ListByProject(ctx, projectID, limit)
}

func (s *Service) ListDonorDonations(ctx context.Context, address string, limit int) ([]domain.Donation, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalid("donor address is required")
	}
	return s.Donations.ListByDonor(ctx, address, limit)
}

// PendingDonations lists donations still pending after grace.
func (s *Service) PendingDonations(ctx context.Context, grace time.Duration, limit int) ([]domain.Donation, error) {
	return s.Donations.ListPending(ctx, s.now().Add(-grace), limit)
}

// Reconcile re-derives every project total from confirmed donations.
func (s *Service) Reconcile(ctx context.Context) ([]domain.TotalDrift, error) {
	drifts, err := s.Donations.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	s.Metrics.TotalsDrift(len(drifts))
	for _, d := range drifts {
		s.Logger.Warn().
			Int64("project_id", d.ProjectID).
			Str("stored", d.Stored.String()).
			Str("derived", d.Derived.String()).
			Msg("project total corrected")
	}
	return drifts, nil
}

func (s *Service) Leaderboard(ctx context.Context, timeframe domain.Timeframe, limit int) ([]domain.LeaderboardEntry, error) {
	switch timeframe {
	case "", domain.TimeframeAll, domain.TimeframeWeek, domain.TimeframeMonth:
	default:
		return nil, invalid("unknown timeframe %q", timeframe)
	}
	return s.Stats.Leaderboard(ctx, timeframe.Since(s.now()), limit)
}

func (s *Service) Summary(ctx context.Context) (*domain.Stats, error) {
	return s.Stats.Summary(ctx)
}
