package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const (
	defaultDonationLimit = 50
	maxDonationLimit     = 500
)

func (a *App) ListDonations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.Campaign.ListDonations(r.Context(), id, queryLimit(r, defaultDonationLimit, maxDonationLimit))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Donation{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// CreateDonation records a donation for a submitted chain transaction. The
// response is 202 while verification is pending, 201 once confirmed, and 200
// when the transaction had already been recorded.
func (a *App) CreateDonation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in campaign.DonationInput
	if !a.decode(w, r, &in) {
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	donation, err := a.Campaign.RecordDonation(r.Context(), session, id, in)
	switch {
	case errors.Is(err, domain.ErrDuplicateOperation) && donation != nil:
		a.json(w, http.StatusOK, donation)
	case err != nil:
		a.fail(w, r, err)
	case donation.Status == domain.DonationConfirmed:
		a.json(w, http.StatusCreated, donation)
	default:
		a.json(w, http.StatusAccepted, donation)
	}
}

func (a *App) ListDonorDonations(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	items, err := a.Campaign.ListDonorDonations(r.Context(), address, queryLimit(r, defaultDonationLimit, maxDonationLimit))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Donation{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
