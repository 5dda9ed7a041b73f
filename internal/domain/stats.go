package domain

import "time"

// Stats aggregates platform wide totals.
type Stats struct {
	TotalProjects    int64  `json:"total_projects"`
	ActiveProjects   int64  `json:"active_projects"`
	TotalDonations   int64  `json:"total_donations"`
	TotalRaised      Amount `json:"total_raised"`
	UniqueDonors     int64  `json:"unique_donors"`
	PendingDonations int64  `json:"pending_donations"`
}

// LeaderboardEntry ranks a donor by confirmed giving.
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	DonorAddress  string    `json:"donor_address"`
	TotalDonated  Amount    `json:"total_donated"`
	DonationCount int64     `json:"donation_count"`
	LastDonation  time.Time `json:"last_donation"`
}

type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Since returns the lower bound for the timeframe, or the zero time for all.
func (t Timeframe) Since(now time.Time) time.Time {
	switch t {
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

// TotalDrift reports a project whose stored total disagreed with its
// confirmed donations during reconciliation.
type TotalDrift struct {
	ProjectID int64  `json:"project_id"`
	Stored    Amount `json:"stored"`
	Derived   Amount `json:"derived"`
}
