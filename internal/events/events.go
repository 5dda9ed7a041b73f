// Package events carries donation and project notifications between the api,
// the worker and the Telegram bot.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const (
	Exchange             = "charity"
	KeyDonationConfirmed = "donation.confirmed"
	KeyProjectCreated    = "project.created"
)

// DonationEvent is published once a donation is confirmed and counted.
type DonationEvent struct {
	DonationID          int64         `json:"donation_id"`
	ProjectID           int64         `json:"project_id"`
	ProjectTitle        string        `json:"project_title"`
	DonorAddress        string        `json:"donor_address"`
	Amount              domain.Amount `json:"amount"`
	TransactionID       string        `json:"transaction_id"`
	Network             string        `json:"network"`
	ProjectTotal        domain.Amount `json:"project_total"`
	TargetAmount        domain.Amount `json:"target_amount"`
	CompletedMilestones []string      `json:"completed_milestones,omitempty"`
	OccurredAt          time.Time     `json:"occurred_at"`
}

// ProjectEvent is published when a project is created.
type ProjectEvent struct {
	ProjectID      int64           `json:"project_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       domain.Category `json:"category"`
	TargetAmount   domain.Amount   `json:"target_amount"`
	CreatorAddress string          `json:"creator_address"`
	EndDate        time.Time       `json:"end_date"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishDonation(ctx context.Context, evt DonationEvent) error
	PublishProject(ctx context.Context, evt ProjectEvent) error
	Close() error
}

// Handler receives decoded events from a Consumer. Returning an error requeues
// the delivery once.
type Handler struct {
	Donation func(ctx context.Context, evt DonationEvent) error
	Project  func(ctx context.Context, evt ProjectEvent) error
}

// Dispatch decodes body according to routingKey and calls the matching callback.
// Unknown keys and missing callbacks are ignored.
func (h Handler) Dispatch(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case KeyDonationConfirmed:
		if h.Donation == nil {
			return nil
		}
		var evt DonationEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", routingKey, err)
		}
		return h.Donation(ctx, evt)
	case KeyProjectCreated:
		if h.Project == nil {
			return nil
		}
		var evt ProjectEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", routingKey, err)
		}
		return h.Project(ctx, evt)
	}
	return nil
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishDonation(context.Context, DonationEvent) error { return nil }
func (Nop) PublishProject(context.Context, ProjectEvent) error   { return nil }
func (Nop) Close() error                                         { return nil }

// Memory keeps published events in order. Handy in tests and single-process
// development runs.
type Memory struct {
	mu        sync.Mutex
	Donations []DonationEvent
	Projects  []ProjectEvent
	Err       error
}

func (m *Memory) PublishDonation(_ context.Context, evt DonationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Donations = append(m.Donations, evt)
	return nil
}

func (m *Memory) PublishProject(_ context.Context, evt ProjectEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Projects = append(m.Projects, evt)
	return nil
}

func (m *Memory) Close() error { return nil }

// Snapshot returns copies of the recorded events.
func (m *Memory) Snapshot() ([]DonationEvent, []ProjectEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DonationEvent(nil), m.Donations...), append([]ProjectEvent(nil), m.Projects...)
}
