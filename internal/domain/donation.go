package domain

import (
	"strings"
	"time"
)

type DonationStatus string

const (
	DonationPending   DonationStatus = "PENDING"
	DonationConfirmed DonationStatus = "CONFIRMED"
	DonationFailed    DonationStatus = "FAILED"
)

// Network identifies which chain a donation transaction was sent on.
type Network string

const (
	NetworkFlow    Network = "flow"
	NetworkFlowEVM Network = "flow-evm"
)

func ParseNetwork(raw string) (Network, bool) {
	switch Network(strings.ToLower(strings.TrimSpace(raw))) {
	case "", NetworkFlow:
		return NetworkFlow, true
	case NetworkFlowEVM, "evm":
		return NetworkFlowEVM, true
	}
	return "", false
}

// Donation records a contribution to a project. Only CONFIRMED donations count
// towards the project total.
type Donation struct {
	ID            int64          `json:"id"`
	ProjectID     int64          `json:"project_id"`
	DonorAddress  string         `json:"donor_address"`
	Amount        Amount         `json:"amount"`
	TransactionID string         `json:"transaction_id"`
	Network       Network        `json:"network"`
	Status        DonationStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ConfirmedAt   *time.Time     `json:"confirmed_at,omitempty"`
}

// ConfirmResult describes what confirming a donation changed.
type ConfirmResult struct {
	Donation            Donation    `json:"donation"`
	ProjectTotal        Amount      `json:"project_total"`
	CompletedMilestones []Milestone `json:"completed_milestones,omitempty"`
	// AlreadyConfirmed is set when the donation was confirmed by an earlier call
	// and nothing was changed.
	AlreadyConfirmed bool `json:"already_confirmed"`
}
