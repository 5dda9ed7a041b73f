package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra/sqltest"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func projectRow(id int64, title, category, current, status string) []any {
	end := fixedNow.Add(30 * 24 * time.Hour)
	return []any{id, title, "desc", "100.00000000", current, status, "0x01cf0e2f2f715450", category, "", &end, fixedNow, fixedNow}
}

func donationRow(id, projectID int64, amount, txID, status string) []any {
	return []any{id, projectID, "0x01cf0e2f2f715450", amount, txID, "flow", status, "", fixedNow, nil}
}

func milestoneRow(id, projectID int64, pct int, required, current, status string) []any {
	return []any{id, projectID, "m", "", pct, required, current, status, fixedNow, fixedNow}
}

func TestProjectCreateUsesDatabaseDefaults(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QInsertProject, sqltest.Result{
		Rows: [][]any{projectRow(1, "Clean water", "Environment", "0.00000000", "ACTIVE")},
	})
	repo := NewProjectRepository(exec)

	p := &domain.Project{
		Title:          "Clean water",
		TargetAmount:   domain.MustAmount("100"),
		CurrentAmount:  domain.MustAmount("55"),
		Status:         domain.ProjectCompleted,
		CreatorAddress: "0x01cf0e2f2f715450",
		Category:       domain.CategoryEnvironment,
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if p.ID != 1 || p.CurrentAmount != 0 || p.Status != domain.ProjectActive {
		t.Fatalf("unexpected project after create: %+v", p)
	}
	call := exec.CallsTo(sqlinline.QInsertProject)[0]
	if len(call.Args) != 7 {
		t.Fatalf("insert should not pass current amount or status, got %d args", len(call.Args))
	}
	if call.Args[2] != "100.00000000" {
		t.Fatalf("target arg = %v", call.Args[2])
	}
	if call.Args[6] != (*time.Time)(nil) {
		t.Fatalf("zero end date should be sent as NULL, got %v", call.Args[6])
	}
}

func TestProjectCreateWithMilestonesIsAtomic(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QInsertProject, sqltest.Result{Rows: [][]any{projectRow(3, "Wells", "Environment", "0.00000000", "ACTIVE")}}).
		On(sqlinline.QInsertMilestone, sqltest.Result{Rows: [][]any{milestoneRow(10, 3, 30, "30.00000000", "0.00000000", "PENDING")}})
	p := &domain.Project{
		Title:        "Wells",
		TargetAmount: domain.MustAmount("100"),
		Milestones:   []domain.Milestone{{Title: "m", Percentage: 30, RequiredAmount: domain.MustAmount("30")}},
	}
	if err := NewProjectRepository(exec).Create(context.Background(), p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(p.Milestones) != 1 || p.Milestones[0].ID != 10 || p.Milestones[0].ProjectID != 3 {
		t.Fatalf("milestones = %+v", p.Milestones)
	}
	for _, c := range exec.Calls() {
		if !c.InTx {
			t.Fatalf("statement outside transaction: %.40q", c.Query)
		}
	}
	if args := exec.CallsTo(sqlinline.QInsertMilestone)[0].Args; args[0] != int64(3) || args[4] != "30.00000000" {
		t.Fatalf("milestone args = %v", args)
	}
	if exec.Commits != 1 {
		t.Fatalf("commits = %d", exec.Commits)
	}

	failing := sqltest.New().
		On(sqlinline.QInsertProject, sqltest.Result{Rows: [][]any{projectRow(4, "Wells", "Environment", "0.00000000", "ACTIVE")}}).
		On(sqlinline.QInsertMilestone, sqltest.Result{Err: &pgconn.PgError{Code: "23514", ConstraintName: "milestones_required_amount_check"}})
	p = &domain.Project{Title: "Wells", Milestones: []domain.Milestone{{Title: "m", Percentage: 30}}}
	if err := NewProjectRepository(failing).Create(context.Background(), p); err == nil {
		t.Fatal("expected milestone error")
	}
	if failing.Rollbacks != 1 || failing.Commits != 0 || p.ID != 0 {
		t.Fatalf("rollbacks %d commits %d id %d", failing.Rollbacks, failing.Commits, p.ID)
	}
}

func TestProjectGetByIDNotFound(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QSelectProjectByID, sqltest.Result{})
	_, err := NewProjectRepository(exec).GetByID(context.Background(), 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectListPassesFilter(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QListProjects, sqltest.Result{
		Rows: [][]any{projectRow(2, "School books", "Education", "10", "ACTIVE")},
	})
	items, err := NewProjectRepository(exec).List(context.Background(), domain.ProjectFilter{
		Category: domain.CategoryEducation,
		Search:   "100%_off",
		Sort:     domain.SortPopular,
	})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(items) != 1 || items[0].Category != domain.CategoryEducation {
		t.Fatalf("unexpected items: %+v", items)
	}
	args := exec.CallsTo(sqlinline.QListProjects)[0].Args
	if args[0] != "Education" || args[1] != "" {
		t.Fatalf("category/status args = %v %v", args[0], args[1])
	}
	if args[2] != `100\%\_off` {
		t.Fatalf("search should be LIKE-escaped, got %v", args[2])
	}
	if args[4] != "popular" || args[5] != domain.DefaultProjectLimit {
		t.Fatalf("sort/limit args = %v %v", args[4], args[5])
	}
}

func TestDonationCreateDuplicateReturnsExisting(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QInsertDonation, sqltest.Result{}).
		On(sqlinline.QSelectDonationByTx, sqltest.Result{Rows: [][]any{donationRow(9, 1, "5", "tx-1", "CONFIRMED")}})
	repo := NewDonationRepository(exec)

	d := &domain.Donation{ProjectID: 1, DonorAddress: "0xabc", Amount: domain.MustAmount("5"), TransactionID: "tx-1", Network: domain.NetworkFlow}
	err := repo.Create(context.Background(), d)
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	if d.ID != 9 || d.Status != domain.DonationConfirmed {
		t.Fatalf("existing donation not returned: %+v", d)
	}
}

func TestDonationCreateUnknownProject(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QInsertDonation, sqltest.Result{Err: &pgconn.PgError{Code: "23503"}})
	d := &domain.Donation{ProjectID: 77, Amount: domain.MustAmount("1"), TransactionID: "tx"}
	if err := NewDonationRepository(exec).Create(context.Background(), d); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDonationConfirmIncrementsInsideTransaction(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QLockDonation, sqltest.Result{Rows: [][]any{donationRow(3, 1, "25.5", "tx-3", "PENDING")}}).
		On(sqlinline.QMarkDonationConfirmed, sqltest.Result{Rows: [][]any{{fixedNow}}}).
		On(sqlinline.QIncrementProjectTotal, sqltest.Result{Rows: [][]any{{"60.50000000"}}}).
		On(sqlinline.QAdvanceMilestones, sqltest.Result{Rows: [][]any{
			milestoneRow(1, 1, 50, "50", "50", "COMPLETED"),
			milestoneRow(2, 1, 100, "100", "60.5", "PENDING"),
		}})
	repo := NewDonationRepository(exec)

	res, err := repo.Confirm(context.Background(), 3)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if res.AlreadyConfirmed {
		t.Fatal("first confirm reported as already confirmed")
	}
	if res.ProjectTotal != domain.MustAmount("60.5") {
		t.Fatalf("ProjectTotal = %s", res.ProjectTotal)
	}
	if len(res.CompletedMilestones) != 1 || res.CompletedMilestones[0].ID != 1 {
		t.Fatalf("CompletedMilestones = %+v", res.CompletedMilestones)
	}
	if res.Donation.Status != domain.DonationConfirmed || res.Donation.ConfirmedAt == nil {
		t.Fatalf("donation not confirmed: %+v", res.Donation)
	}
	if exec.Commits != 1 {
		t.Fatalf("expected one commit, got %d", exec.Commits)
	}
	inc := exec.CallsTo(sqlinline.QIncrementProjectTotal)
	if len(inc) != 1 || !inc[0].InTx || inc[0].Args[1] != "25.50000000" {
		t.Fatalf("increment call wrong: %+v", inc)
	}
}

func TestDonationConfirmIsIdempotent(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QLockDonation, sqltest.Result{Rows: [][]any{donationRow(3, 1, "25.5", "tx-3", "CONFIRMED")}}).
		On(sqlinline.QSelectProjectByID, sqltest.Result{Rows: [][]any{projectRow(1, "p", "Education", "25.5", "ACTIVE")}})

	res, err := NewDonationRepository(exec).Confirm(context.Background(), 3)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if !res.AlreadyConfirmed || res.ProjectTotal != domain.MustAmount("25.5") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := len(exec.CallsTo(sqlinline.QIncrementProjectTotal)); n != 0 {
		t.Fatalf("total incremented %d times on repeat confirm", n)
	}
}

func TestDonationConfirmFailedDonationRollsBack(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QLockDonation, sqltest.Result{Rows: [][]any{donationRow(4, 1, "1", "tx-4", "FAILED")}})

	_, err := NewDonationRepository(exec).Confirm(context.Background(), 4)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if exec.Rollbacks != 1 || exec.Commits != 0 {
		t.Fatalf("commits=%d rollbacks=%d", exec.Commits, exec.Rollbacks)
	}
}

func TestDonationConfirmMissingProjectRollsBack(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QLockDonation, sqltest.Result{Rows: [][]any{donationRow(5, 9, "1", "tx-5", "PENDING")}}).
		On(sqlinline.QMarkDonationConfirmed, sqltest.Result{Rows: [][]any{{fixedNow}}}).
		On(sqlinline.QIncrementProjectTotal, sqltest.Result{})

	_, err := NewDonationRepository(exec).Confirm(context.Background(), 5)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if exec.Rollbacks != 1 {
		t.Fatal("confirmation should roll back when the project row is missing")
	}
}

func TestDonationFailRequiresPending(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QFailDonation, sqltest.Result{Affected: 0})
	err := NewDonationRepository(exec).Fail(context.Background(), 1, "reverted")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDonationReconcile(t *testing.T) {
	exec := sqltest.New().
		On(sqlinline.QLockProjects, sqltest.Result{Affected: 2}).
		On(sqlinline.QReconcileTotals, sqltest.Result{Rows: [][]any{{int64(2), "70", "50"}}}).
		On(sqlinline.QReconcileMilestones, sqltest.Result{Affected: 1})

	drifts, err := NewDonationRepository(exec).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if len(drifts) != 1 || drifts[0].ProjectID != 2 || drifts[0].Derived != domain.MustAmount("50") {
		t.Fatalf("unexpected drifts: %+v", drifts)
	}
	if exec.Commits != 1 {
		t.Fatal("reconcile should commit once")
	}
	calls := exec.Calls()
	if len(calls) != 3 || calls[0].Query != sqlinline.QLockProjects || calls[1].Query != sqlinline.QReconcileTotals {
		t.Fatalf("project rows must be locked before totals are derived, got %d calls", len(calls))
	}
	for _, c := range calls {
		if !c.InTx {
			t.Fatalf("statement outside transaction: %.40q", c.Query)
		}
	}
}

func TestDonationReconcileLockFailureRollsBack(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QLockProjects, sqltest.Result{Err: &pgconn.PgError{Code: "55P03"}})
	if _, err := NewDonationRepository(exec).Reconcile(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if exec.Rollbacks != 1 || len(exec.CallsTo(sqlinline.QReconcileTotals)) != 0 {
		t.Fatalf("rollbacks %d, totals derived %d times", exec.Rollbacks, len(exec.CallsTo(sqlinline.QReconcileTotals)))
	}
}

func TestLeaderboardRanksAndAllTime(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QLeaderboard, sqltest.Result{Rows: [][]any{
		{"0xaaa", "30", int64(2), fixedNow},
		{"0xbbb", "10.5", int64(1), fixedNow},
	}})
	entries, err := NewStatsRepository(exec).Leaderboard(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("Leaderboard error: %v", err)
	}
	if len(entries) != 2 || entries[1].Rank != 2 || entries[1].TotalDonated != domain.MustAmount("10.5") {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if since := exec.CallsTo(sqlinline.QLeaderboard)[0].Args[0]; since != (*time.Time)(nil) {
		t.Fatalf("all-time leaderboard should pass NULL, got %v", since)
	}
}

func TestWalletSessionGetNotFound(t *testing.T) {
	exec := sqltest.New().On(sqlinline.QSelectWalletSession, sqltest.Result{})
	if _, err := NewWalletSessionRepository(exec).Get(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
