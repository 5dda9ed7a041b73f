package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign/campaigntest"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

const creator = "0x01cf0e2f2f715450"

type recordingVerifier struct {
	ids []int64
	err error
}

func (v *recordingVerifier) EnqueueVerify(_ context.Context, id int64) error {
	v.ids = append(v.ids, id)
	return v.err
}

func newTestService() (*Service, *campaigntest.Store, *events.Memory) {
	store := campaigntest.New()
	pub := &events.Memory{}
	svc := &Service{
		Projects:   store.Projects(),
		Milestones: store.Milestones(),
		Donations:  store.Donations(),
		Stats:      store.Stats(),
		Votes:      store.Votes(),
		Events:     pub,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	}
	return svc, store, pub
}

func walletSession(addr string) *domain.WalletSession {
	return &domain.WalletSession{ID: "s1", Provider: "flow", Address: addr, ExpiresAt: testNow.Add(time.Hour)}
}

func validInput() CreateProjectInput {
	return CreateProjectInput{
		Title:        "Clean Water for Kenya",
		Description:  "Wells for three villages",
		TargetAmount: domain.MustAmount("1000"),
		Category:     "environment",
		EndDate:      testNow.Add(30 * 24 * time.Hour),
		Milestones: []MilestoneInput{
			{Title: "First well", Percentage: 30},
			{Title: "All wells", Percentage: 100},
		},
	}
}

func TestCreateThenGetProjectStartsActiveAtZero(t *testing.T) {
	svc, _, pub := newTestService()
	in := validInput()

	created, err := svc.CreateProject(context.Background(), walletSession(creator), in)
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	got, err := svc.GetProject(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetProject error: %v", err)
	}
	if got.CurrentAmount != 0 || got.Status != domain.ProjectActive {
		t.Fatalf("new project = %s / %s, want 0 / ACTIVE", got.CurrentAmount, got.Status)
	}
	if got.Category != domain.CategoryEnvironment || got.CreatorAddress != creator {
		t.Fatalf("unexpected project: %+v", got)
	}
	if len(got.Milestones) != 2 || got.Milestones[0].RequiredAmount != domain.MustAmount("300") {
		t.Fatalf("unexpected milestones: %+v", got.Milestones)
	}
	if _, projects := pub.Snapshot(); len(projects) != 1 || projects[0].ProjectID != created.ID {
		t.Fatalf("project event not published: %+v", projects)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	cases := []struct {
		name    string
		session *domain.WalletSession
		mutate  func(*CreateProjectInput)
		want    error
	}{
		{name: "no wallet", session: nil, mutate: func(*CreateProjectInput) {}, want: domain.ErrWalletRequired},
		{name: "expired wallet", session: &domain.WalletSession{Address: creator, ExpiresAt: testNow.Add(-time.Minute)}, mutate: func(*CreateProjectInput) {}, want: domain.ErrWalletRequired},
		{name: "blank title", session: walletSession(creator), mutate: func(in *CreateProjectInput) { in.Title = "  " }, want: domain.ErrInvalidInput},
		{name: "zero target", session: walletSession(creator), mutate: func(in *CreateProjectInput) { in.TargetAmount = 0 }, want: domain.ErrInvalidInput},
		{name: "unknown category", session: walletSession(creator), mutate: func(in *CreateProjectInput) { in.Category = "Sports" }, want: domain.ErrInvalidInput},
		{name: "past end date", session: walletSession(creator), mutate: func(in *CreateProjectInput) { in.EndDate = testNow.Add(-time.Hour) }, want: domain.ErrInvalidInput},
		{name: "bad milestone", session: walletSession(creator), mutate: func(in *CreateProjectInput) { in.Milestones[0].Percentage = 120 }, want: domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newTestService()
			in := validInput()
			tc.mutate(&in)
			_, err := svc.CreateProject(context.Background(), tc.session, in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if store.ProjectCount() != 0 {
				t.Fatal("rejected project was stored")
			}
		})
	}
}

func TestCreateProjectMilestoneFailureStoresNothing(t *testing.T) {
	svc, store, pub := newTestService()
	store.FailMilestone("All wells")

	if _, err := svc.CreateProject(context.Background(), walletSession(creator), validInput()); err == nil {
		t.Fatal("expected milestone failure")
	}
	if store.ProjectCount() != 0 {
		t.Fatal("project stored without its milestones")
	}
	if _, projects := pub.Snapshot(); len(projects) != 0 {
		t.Fatalf("event published for failed project: %+v", projects)
	}
}

func TestCreateProjectLargeTarget(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	in.TargetAmount = domain.MustAmount("5000000000")

	created, err := svc.CreateProject(context.Background(), walletSession(creator), in)
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	if created.Milestones[0].RequiredAmount != domain.MustAmount("1500000000") || created.Milestones[1].RequiredAmount != in.TargetAmount {
		t.Fatalf("milestones = %+v", created.Milestones)
	}
}

func TestRecordDonationRejectsWithoutChangingState(t *testing.T) {
	svc, store, _ := newTestService()
	project, err := svc.CreateProject(context.Background(), walletSession(creator), validInput())
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}

	cases := []struct {
		name    string
		session *domain.WalletSession
		amount  domain.Amount
		want    error
	}{
		{name: "zero amount", session: walletSession("0xdonor"), amount: 0, want: domain.ErrInvalidInput},
		{name: "negative amount", session: walletSession("0xdonor"), amount: domain.MustAmount("-1"), want: domain.ErrInvalidInput},
		{name: "no wallet", session: nil, amount: domain.MustAmount("5"), want: domain.ErrWalletRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordDonation(context.Background(), tc.session, project.ID, DonationInput{Amount: tc.amount, TransactionID: "tx-" + tc.name})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := store.DonationCount(); n != 0 {
		t.Fatalf("rejected donations stored: %d", n)
	}
	got, _ := svc.GetProject(context.Background(), project.ID)
	if got.CurrentAmount != 0 {
		t.Fatalf("total moved to %s", got.CurrentAmount)
	}
}

func TestRecordDonationConfirmsWithoutVerifier(t *testing.T) {
	svc, _, pub := newTestService()
	project, _ := svc.CreateProject(context.Background(), walletSession(creator), validInput())

	d, err := svc.RecordDonation(context.Background(), walletSession("0xdonor"), project.ID, DonationInput{Amount: domain.MustAmount("300"), TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("RecordDonation error: %v", err)
	}
	if d.Status != domain.DonationConfirmed {
		t.Fatalf("status = %s", d.Status)
	}
	got, _ := svc.GetProject(context.Background(), project.ID)
	if got.CurrentAmount != domain.MustAmount("300") {
		t.Fatalf("total = %s", got.CurrentAmount)
	}
	donations, _ := pub.Snapshot()
	if len(donations) != 1 || donations[0].ProjectTitle != project.Title {
		t.Fatalf("donation event = %+v", donations)
	}
	if len(donations[0].CompletedMilestones) != 1 || donations[0].CompletedMilestones[0] != "First well" {
		t.Fatalf("completed milestones = %v", donations[0].CompletedMilestones)
	}

	again, err := svc.RecordDonation(context.Background(), walletSession("0xdonor"), project.ID, DonationInput{Amount: domain.MustAmount("300"), TransactionID: "tx-1"})
	if !errors.Is(err, domain.ErrDuplicateOperation) || again.ID != d.ID {
		t.Fatalf("duplicate submit: %v %+v", err, again)
	}
	got, _ = svc.GetProject(context.Background(), project.ID)
	if got.CurrentAmount != domain.MustAmount("300") {
		t.Fatalf("duplicate moved total to %s", got.CurrentAmount)
	}
}

func TestRecordDonationEnqueuesVerification(t *testing.T) {
	svc, _, pub := newTestService()
	verifier := &recordingVerifier{}
	svc.Verifier = verifier
	project, _ := svc.CreateProject(context.Background(), walletSession(creator), validInput())

	d, err := svc.RecordDonation(context.Background(), walletSession("0xdonor"), project.ID, DonationInput{Amount: domain.MustAmount("1.5"), TransactionID: "0xabc", Network: "flow-evm"})
	if err != nil {
		t.Fatalf("RecordDonation error: %v", err)
	}
	if d.Status != domain.DonationPending || d.Network != domain.NetworkFlowEVM {
		t.Fatalf("unexpected donation: %+v", d)
	}
	if len(verifier.ids) != 1 || verifier.ids[0] != d.ID {
		t.Fatalf("verifier calls = %v", verifier.ids)
	}
	if donations, _ := pub.Snapshot(); len(donations) != 0 {
		t.Fatal("pending donation should not publish")
	}
}

func TestRecordDonationClosedProject(t *testing.T) {
	svc, _, _ := newTestService()
	project, _ := svc.CreateProject(context.Background(), walletSession(creator), validInput())
	if _, err := svc.UpdateProjectStatus(context.Background(), walletSession(creator), project.ID, domain.ProjectCancelled); err != nil {
		t.Fatalf("UpdateProjectStatus error: %v", err)
	}
	_, err := svc.RecordDonation(context.Background(), walletSession("0xdonor"), project.ID, DonationInput{Amount: domain.MustAmount("1"), TransactionID: "tx"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateProjectStatusCreatorOnly(t *testing.T) {
	svc, _, _ := newTestService()
	project, _ := svc.CreateProject(context.Background(), walletSession(creator), validInput())
	_, err := svc.UpdateProjectStatus(context.Background(), walletSession("0xsomeoneelse"), project.ID, domain.ProjectCompleted)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	upper := walletSession("0x01CF0E2F2F715450")
	if _, err := svc.UpdateProjectStatus(context.Background(), upper, project.ID, domain.ProjectCompleted); err != nil {
		t.Fatalf("creator address should match case-insensitively: %v", err)
	}
}

func TestListProjectsByCategoryAndSuggestions(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	if _, err := svc.CreateProject(context.Background(), walletSession(creator), in); err != nil {
		t.Fatal(err)
	}
	in.Title = "Rural School Books"
	in.Category = "Education"
	if _, err := svc.CreateProject(context.Background(), walletSession(creator), in); err != nil {
		t.Fatal(err)
	}

	res, err := svc.ListProjects(context.Background(), domain.ProjectFilter{Category: "education"})
	if err != nil {
		t.Fatalf("ListProjects error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 project, got %d", len(res.Items))
	}
	for _, p := range res.Items {
		if p.Category != domain.CategoryEducation {
			t.Fatalf("category filter leaked %q", p.Category)
		}
	}

	res, err = svc.ListProjects(context.Background(), domain.ProjectFilter{Search: "watr"})
	if err != nil {
		t.Fatalf("ListProjects error: %v", err)
	}
	if len(res.Items) != 0 || len(res.Suggestions) == 0 || res.Suggestions[0] != "Clean Water for Kenya" {
		t.Fatalf("unexpected search result: %+v", res)
	}

	if _, err := svc.ListProjects(context.Background(), domain.ProjectFilter{Category: "Sports"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReconcileRestoresDerivedTotal(t *testing.T) {
	svc, store, _ := newTestService()
	project, _ := svc.CreateProject(context.Background(), walletSession(creator), validInput())
	if _, err := svc.RecordDonation(context.Background(), walletSession("0xdonor"), project.ID, DonationInput{Amount: domain.MustAmount("10"), TransactionID: "tx-r"}); err != nil {
		t.Fatal(err)
	}
	store.SetCurrentAmount(project.ID, domain.MustAmount("999"))

	drifts, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Derived != domain.MustAmount("10") {
		t.Fatalf("unexpected drifts: %+v", drifts)
	}
	got, _ := svc.GetProject(context.Background(), project.ID)
	if got.CurrentAmount != domain.MustAmount("10") {
		t.Fatalf("total after reconcile = %s", got.CurrentAmount)
	}
}

func TestSuggest(t *testing.T) {
	projects := []domain.Project{{Title: "Clean Water for Kenya"}, {Title: "Solar Lamps"}, {Title: "Rural School Books"}, {Title: "solar lamps"}}
	got := Suggest("solr", projects, 3)
	if len(got) != 1 || got[0] != "Solar Lamps" {
		t.Fatalf("Suggest = %v", got)
	}
	if Suggest("", projects, 3) != nil {
		t.Fatal("empty query should return nil")
	}
	if got := Suggest("zzzzzzzz", projects, 3); len(got) != 0 {
		t.Fatalf("distant query matched %v", got)
	}
}

func fundedForVote(t *testing.T, svc *Service) (*domain.Project, domain.Milestone) {
	t.Helper()
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, walletSession(creator), validInput())
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	for i, d := range []struct{ donor, amount string }{{"0xaaaa", "300"}, {"0xbbbb", "100"}} {
		in := DonationInput{Amount: domain.MustAmount(d.amount), TransactionID: "tx-vote-" + string(rune('a'+i))}
		if _, err := svc.RecordDonation(ctx, walletSession(d.donor), project.ID, in); err != nil {
			t.Fatalf("RecordDonation error: %v", err)
		}
	}
	items, _ := svc.ListMilestones(ctx, project.ID)
	for _, m := range items {
		if m.Title == "All wells" {
			return project, m
		}
	}
	t.Fatal("milestone not found")
	return nil, domain.Milestone{}
}

func TestMilestoneVoteSettlesByDonationWeight(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, m := fundedForVote(t, svc)

	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneVoting); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	res, err := svc.CastVote(ctx, walletSession("0xbbbb"), m.ID, false)
	if err != nil {
		t.Fatalf("CastVote error: %v", err)
	}
	if res.Status != domain.MilestoneVoting || res.Vote.Weight != domain.MustAmount("100") {
		t.Fatalf("minority reject settled: %+v", res)
	}
	res, err = svc.CastVote(ctx, walletSession("0xAAAA"), m.ID, true)
	if err != nil {
		t.Fatalf("CastVote error: %v", err)
	}
	if res.Status != domain.MilestoneCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}
	if res.Tally.Approve != domain.MustAmount("300") || res.Tally.Eligible != domain.MustAmount("400") || res.Tally.Voters != 2 {
		t.Fatalf("tally = %+v", res.Tally)
	}

	summary, err := svc.ListVotes(ctx, m.ID)
	if err != nil {
		t.Fatalf("ListVotes error: %v", err)
	}
	if summary.Milestone.Status != domain.MilestoneCompleted || len(summary.Votes) != 2 || summary.Approval != 75 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := svc.CastVote(ctx, walletSession("0xbbbb"), m.ID, true); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("vote on settled milestone: %v", err)
	}
}

func TestMilestoneVoteRejection(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, m := fundedForVote(t, svc)
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneVoting); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	res, err := svc.CastVote(ctx, walletSession("0xaaaa"), m.ID, false)
	if err != nil {
		t.Fatalf("CastVote error: %v", err)
	}
	if res.Status != domain.MilestoneRejected {
		t.Fatalf("status = %s, want REJECTED", res.Status)
	}
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneCompleted); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("creator overrode rejected milestone: %v", err)
	}
}

func TestMilestoneVoteRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	project, m := fundedForVote(t, svc)

	if _, err := svc.CastVote(ctx, walletSession("0xaaaa"), m.ID, true); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("vote before voting opened: %v", err)
	}
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneRejected); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("creator rejected directly: %v", err)
	}
	items, _ := svc.ListMilestones(ctx, project.ID)
	for _, other := range items {
		if other.Status == domain.MilestoneCompleted {
			if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), other.ID, domain.MilestoneVoting); !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("reopened completed milestone: %v", err)
			}
		}
	}
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession("0xaaaa"), m.ID, domain.MilestoneVoting); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("donor opened voting: %v", err)
	}
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneVoting); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), m.ID, domain.MilestoneCompleted); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("creator completed a voting milestone: %v", err)
	}

	cases := []struct {
		name    string
		session *domain.WalletSession
		want    error
	}{
		{name: "no wallet", session: nil, want: domain.ErrWalletRequired},
		{name: "not a donor", session: walletSession("0xcccc"), want: domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CastVote(ctx, tc.session, m.ID, true); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := svc.CastVote(ctx, walletSession("0xbbbb"), m.ID, true); err != nil {
		t.Fatalf("CastVote error: %v", err)
	}
	if _, err := svc.CastVote(ctx, walletSession("0xBBBB"), m.ID, false); !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("second vote: %v", err)
	}

	// Funding past the threshold leaves a voting milestone to the donors.
	if _, err := svc.RecordDonation(ctx, walletSession("0xdddd"), project.ID, DonationInput{Amount: domain.MustAmount("700"), TransactionID: "tx-vote-big"}); err != nil {
		t.Fatalf("RecordDonation error: %v", err)
	}
	got, _ := svc.Milestones.GetByID(ctx, m.ID)
	if got.Status != domain.MilestoneVoting {
		t.Fatalf("status = %s after funding, want VOTING", got.Status)
	}
}

func TestOpenVotingNeedsConfirmedDonors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, walletSession(creator), validInput())
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	items, _ := svc.ListMilestones(ctx, project.ID)
	if _, err := svc.UpdateMilestoneStatus(ctx, walletSession(creator), items[0].ID, domain.MilestoneVoting); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
