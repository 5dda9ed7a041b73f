package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yueliao11/Donate-On-Flow/internal/adapter/repo"
	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
)

func main() {
	var (
		idFlag        int64
		statusFlag    string
		reconcileFlag bool
	)
	flag.Int64Var(&idFlag, "id", 0, "project ID to update")
	flag.StringVar(&statusFlag, "status", "", "status to assign (ACTIVE, COMPLETED, CANCELLED)")
	flag.BoolVar(&reconcileFlag, "reconcile", false, "re-derive every project total from confirmed donations")
	flag.Parse()

	status := domain.ProjectStatus(strings.ToUpper(strings.TrimSpace(statusFlag)))
	if !reconcileFlag && (idFlag <= 0 || status == "") {
		exitWithError(errors.New("either -reconcile or both -id and -status must be provided"))
	}
	if status != "" && !status.Valid() {
		exitWithError(fmt.Errorf("unsupported status %q", statusFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "projectadmin")
	runner := infra.NewSQLRunner(pool, logger)
	svc := &campaign.Service{
		Projects:  repo.NewProjectRepository(runner),
		Donations: repo.NewDonationRepository(runner),
		Logger:    logger,
	}

	if idFlag > 0 && status != "" {
		p, err := svc.SetProjectStatus(ctx, idFlag, status)
		if err != nil {
			exitWithError(fmt.Errorf("failed to update project %d: %w", idFlag, err))
		}
		fmt.Printf("Project %d (%s) set to %s\n", p.ID, p.Title, p.Status)
	}

	if reconcileFlag {
		drifts, err := svc.Reconcile(ctx)
		if err != nil {
			exitWithError(fmt.Errorf("failed to reconcile totals: %w", err))
		}
		for _, d := range drifts {
			fmt.Printf("project %d: %s -> %s\n", d.ProjectID, d.Stored, d.Derived)
		}
		fmt.Printf("%d project totals corrected\n", len(drifts))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
