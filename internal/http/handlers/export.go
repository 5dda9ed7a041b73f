package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/pkg/zip"
)

const maxExportDonations = 10_000

// ProjectExport returns a zip with project.json and donations.csv.
func (a *App) ProjectExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	project, err := a.Campaign.GetProject(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	donations, err := a.Campaign.ListDonations(r.Context(), id, maxExportDonations)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	archive, err := buildProjectArchive(toProjectDTO(*project), donations, a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=project-%d.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

var donationCSVHeader = []string{"id", "donor_address", "amount", "network", "transaction_id", "status", "created_at", "confirmed_at"}

func buildProjectArchive(project projectDTO, donations []domain.Donation, now time.Time) ([]byte, error) {
	projectJSON, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(donationCSVHeader); err != nil {
		return nil, err
	}
	for _, d := range donations {
		confirmed := ""
		if d.ConfirmedAt != nil {
			confirmed = d.ConfirmedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			strconv.FormatInt(d.ID, 10),
			d.DonorAddress,
			d.Amount.String(),
			string(d.Network),
			d.TransactionID,
			string(d.Status),
			d.CreatedAt.UTC().Format(time.RFC3339),
			confirmed,
		}); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}

	return zip.Archive([]zip.Entry{
		{Filename: "project.json", Data: projectJSON, Modified: now},
		{Filename: "donations.csv", Data: buf.Bytes(), Modified: now},
	})
}
