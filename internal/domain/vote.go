package domain

import "time"

// MilestoneVote is one donor's decision on a milestone in VOTING. Weight is
// the voter's confirmed donations to the project when the vote was cast.
type MilestoneVote struct {
	ID           int64     `json:"id"`
	MilestoneID  int64     `json:"milestone_id"`
	VoterAddress string    `json:"voter_address"`
	Approve      bool      `json:"approve"`
	Weight       Amount    `json:"weight"`
	CreatedAt    time.Time `json:"created_at"`
}

// VoteTally sums the votes on a milestone. Eligible is the project's
// confirmed total, the combined weight of every donor who could vote.
type VoteTally struct {
	Approve  Amount `json:"approve_weight"`
	Reject   Amount `json:"reject_weight"`
	Voters   int    `json:"voters"`
	Eligible Amount `json:"eligible_weight"`
}

// Outcome settles the vote once either side holds more than half of the
// eligible weight.
func (t VoteTally) Outcome() MilestoneStatus {
	switch {
	case t.Eligible <= 0:
		return MilestoneVoting
	case t.Approve > t.Eligible-t.Approve:
		return MilestoneCompleted
	case t.Reject > t.Eligible-t.Reject:
		return MilestoneRejected
	}
	return MilestoneVoting
}

// ApprovalPercent is the approving share of the weight cast so far.
func (t VoteTally) ApprovalPercent() float64 {
	return t.Approve.Percent(t.Approve + t.Reject)
}

// VoteResult is what casting a vote changed.
type VoteResult struct {
	Vote   MilestoneVote   `json:"vote"`
	Tally  VoteTally       `json:"tally"`
	Status MilestoneStatus `json:"status"`
}
