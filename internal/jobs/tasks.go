// Package jobs runs donation verification and total reconciliation on asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeVerifyDonation  = "donation:verify"
	TypeReconcileTotals = "totals:reconcile"
)

type VerifyPayload struct {
	DonationID int64 `json:"donation_id"`
}

func NewVerifyTask(donationID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(VerifyPayload{DonationID: donationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerifyDonation, payload), nil
}

func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcileTotals, nil)
}

// verifyQueue is the asynq queue verification tasks run on.
const verifyQueue = "default"

// ErrAlreadyQueued reports that a live verification task already exists for
// the donation.
var ErrAlreadyQueued = errors.New("jobs: verification already queued")

func verifyTaskID(donationID int64) string {
	return fmt.Sprintf("verify-%d", donationID)
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// inspector is the subset of asynq.Inspector used to clear finished tasks.
type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Client enqueues verification tasks.
type Client struct {
	q        enqueuer
	inspect  inspector
	maxRetry int
	timeout  time.Duration
}

// NewClient wraps c. timeout bounds one verification attempt.
func NewClient(c *asynq.Client, maxRetry int, timeout time.Duration) *Client {
	return &Client{q: c, maxRetry: maxRetry, timeout: timeout}
}

// WithInspector lets EnqueueVerify replace an archived or completed task that
// still holds the donation's task id.
func (c *Client) WithInspector(i *asynq.Inspector) *Client {
	c.inspect = i
	return c
}

// EnqueueVerify schedules verification of donationID. A task already queued
// for the same donation is not duplicated and yields ErrAlreadyQueued.
func (c *Client) EnqueueVerify(ctx context.Context, donationID int64) error {
	task, err := NewVerifyTask(donationID)
	if err != nil {
		return err
	}
	id := verifyTaskID(donationID)
	opts := []asynq.Option{asynq.Queue(verifyQueue), asynq.TaskID(id), asynq.MaxRetry(c.maxRetry)}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	_, err = c.q.EnqueueContext(ctx, task, opts...)
	if conflict(err) {
		replaced, rerr := c.clearFinished(id)
		if rerr != nil {
			return fmt.Errorf("inspect %s: %w", id, rerr)
		}
		if !replaced {
			return ErrAlreadyQueued
		}
		_, err = c.q.EnqueueContext(ctx, task, opts...)
	}
	switch {
	case conflict(err):
		return ErrAlreadyQueued
	case err != nil:
		return fmt.Errorf("enqueue %s: %w", TypeVerifyDonation, err)
	}
	return nil
}

// clearFinished deletes the task holding id when it can no longer run.
func (c *Client) clearFinished(id string) (bool, error) {
	if c.inspect == nil {
		return false, nil
	}
	info, err := c.inspect.GetTaskInfo(verifyQueue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false, nil
	}
	if err := c.inspect.DeleteTask(verifyQueue, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, err
	}
	return true, nil
}

func conflict(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}
