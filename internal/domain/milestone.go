package domain

import "time"

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneActive    MilestoneStatus = "ACTIVE"
	MilestoneCompleted MilestoneStatus = "COMPLETED"
	// MilestoneVoting waits on donor approval; funding no longer advances it.
	MilestoneVoting    MilestoneStatus = "VOTING"
	MilestoneRejected  MilestoneStatus = "REJECTED"
)

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneActive, MilestoneCompleted, MilestoneVoting, MilestoneRejected:
		return true
	}
	return false
}

// Open reports whether funding still advances the milestone.
func (s MilestoneStatus) Open() bool {
	return s == MilestonePending || s == MilestoneActive
}

// Milestone is a funding checkpoint within a project. RequiredAmount is the
// cumulative project total at which the milestone is reached.
type Milestone struct {
	ID             int64           `json:"id"`
	ProjectID      int64           `json:"project_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Percentage     int             `json:"percentage"`
	RequiredAmount Amount          `json:"required_amount"`
	CurrentAmount  Amount          `json:"current_amount"`
	Status         MilestoneStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
