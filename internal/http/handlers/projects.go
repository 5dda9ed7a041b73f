package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

// projectDTO adds the derived progress to a project.
type projectDTO struct {
	domain.Project
	Progress float64 `json:"progress"`
}

func toProjectDTO(p domain.Project) projectDTO {
	return projectDTO{Project: p, Progress: p.Progress()}
}

func parseProjectFilter(r *http.Request) (domain.ProjectFilter, error) {
	q := r.URL.Query()
	var f domain.ProjectFilter
	if raw := strings.TrimSpace(q.Get("category")); raw != "" && !strings.EqualFold(raw, "all") {
		c, ok := domain.ParseCategory(raw)
		if !ok {
			return f, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, raw)
		}
		f.Category = c
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		s := domain.ProjectStatus(strings.ToUpper(raw))
		if !s.Valid() {
			return f, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, raw)
		}
		f.Status = s
	}
	f.Search = q.Get("search")
	f.Creator = q.Get("creator")
	f.Sort = domain.ProjectSort(strings.ToLower(strings.TrimSpace(q.Get("sort"))))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	return f.Normalize(), nil
}

func (a *App) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProjectFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Campaign.ListProjects(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]projectDTO, 0, len(res.Items))
	for _, p := range res.Items {
		items = append(items, toProjectDTO(p))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":       items,
		"suggestions": res.Suggestions,
		"categories":  domain.Categories,
	})
}

func (a *App) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateProjectInput
	if !a.decode(w, r, &in) {
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	project, err := a.Campaign.CreateProject(r.Context(), session, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toProjectDTO(*project))
}

func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
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
	a.json(w, http.StatusOK, toProjectDTO(*project))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *App) UpdateProjectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req statusRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := domain.ProjectStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	project, err := a.Campaign.UpdateProjectStatus(r.Context(), session, id, status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toProjectDTO(*project))
}

func (a *App) ListMilestones(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.Campaign.ListMilestones(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Milestone{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) AddMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in campaign.MilestoneInput
	if !a.decode(w, r, &in) {
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.Campaign.AddMilestone(r.Context(), session, id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, m)
}

func (a *App) UpdateMilestoneStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req statusRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := domain.MilestoneStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	m, err := a.Campaign.UpdateMilestoneStatus(r.Context(), session, id, status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, m)
}

type voteRequest struct {
	Approve *bool `json:"approve"`
}

func (a *App) CastMilestoneVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req voteRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Approve == nil {
		a.fail(w, r, fmt.Errorf("approve is required: %w", domain.ErrInvalidInput))
		return
	}
	session, err := a.walletSession(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Campaign.CastVote(r.Context(), session, id, *req.Approve)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, res)
}

func (a *App) ListMilestoneVotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	votes, err := a.Campaign.ListVotes(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, votes)
}
