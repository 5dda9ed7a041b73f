package domain

import (
	"strings"
	"time"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectCancelled ProjectStatus = "CANCELLED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

type Category string

const (
	CategoryEducation   Category = "Education"
	CategoryHealthcare  Category = "Healthcare"
	CategoryEnvironment Category = "Environment"
	CategoryTechnology  Category = "Technology"
	CategoryArts        Category = "Arts & Culture"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryEducation,
	CategoryHealthcare,
	CategoryEnvironment,
	CategoryTechnology,
	CategoryArts,
}

// ParseCategory matches case-insensitively so "healthcare" from a bot command
// resolves to the canonical value.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(string(c), raw) {
			return c, true
		}
	}
	return "", false
}

// Project is a fundraising campaign.
type Project struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	TargetAmount   Amount        `json:"target_amount"`
	CurrentAmount  Amount        `json:"current_amount"`
	Status         ProjectStatus `json:"status"`
	CreatorAddress string        `json:"creator_address"`
	Category       Category      `json:"category"`
	ImageURL       string        `json:"image_url"`
	EndDate        time.Time     `json:"end_date"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Milestones []Milestone `json:"milestones,omitempty"`
}

// Progress is the funded percentage, capped at 100.
func (p *Project) Progress() float64 {
	return p.CurrentAmount.Percent(p.TargetAmount)
}

// Open reports whether the project still accepts donations at now.
func (p *Project) Open(now time.Time) bool {
	return p.Status == ProjectActive && (p.EndDate.IsZero() || now.Before(p.EndDate))
}

type ProjectSort string

const (
	SortLatest  ProjectSort = "latest"
	SortPopular ProjectSort = "popular"
	SortEnding  ProjectSort = "ending"
)

// ProjectFilter narrows ListProjects. Zero values mean "no constraint".
type ProjectFilter struct {
	Category Category
	Status   ProjectStatus
	Search   string
	Creator  string
	Sort     ProjectSort
	Limit    int
	Offset   int
}

const (
	DefaultProjectLimit = 50
	MaxProjectLimit     = 200
)

// Normalize clamps the limit and defaults the sort order.
func (f ProjectFilter) Normalize() ProjectFilter {
	switch f.Sort {
	case SortLatest, SortPopular, SortEnding:
	default:
		f.Sort = SortLatest
	}
	if f.Limit <= 0 {
		f.Limit = DefaultProjectLimit
	}
	if f.Limit > MaxProjectLimit {
		f.Limit = MaxProjectLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Creator = strings.TrimSpace(f.Creator)
	return f
}
