// Package chain reads transaction outcomes from the Flow access API and the
// Flow EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

var (
	ErrTxNotFound = errors.New("chain: transaction not found")
	ErrInvalidTx  = errors.New("chain: malformed transaction id")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSealed  Status = "SEALED"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// TxResult is the normalised outcome of a transaction.
type TxResult struct {
	ID        string
	Status    Status
	Raw       string
	Error     string
	BlockID   string
	// Sender is the paying account when the backend exposes it.
	Sender    string
	Events    []Event
	// Transfers are the token deposits decoded from the transaction.
	Transfers []Transfer
}

// Transfer is a token deposit observed in a transaction.
type Transfer struct {
	To     string
	Amount domain.Amount
}

// Received sums the transfers credited to addr. match compares addresses in
// the chain's own notation.
func (r TxResult) Received(addr string, match func(a, b string) bool) domain.Amount {
	var total domain.Amount
	for _, t := range r.Transfers {
		if match(t.To, addr) {
			total += t.Amount
		}
	}
	return total
}

// Event is an emitted chain event with its undecoded payload.
type Event struct {
	Type    string
	Payload []byte
}

// Final reports whether the status can no longer change.
func (r TxResult) Final() bool {
	return r.Status == StatusSealed || r.Status == StatusFailed || r.Status == StatusExpired
}

// Chain is one network a donation can be settled on.
type Chain interface {
	Name() string
	TxStatus(ctx context.Context, txID string) (TxResult, error)
	WaitSealed(ctx context.Context, txID string, poll time.Duration) (TxResult, error)
}

// waitSealed polls c until the transaction is final or ctx is done. A
// transaction the node has not indexed yet counts as pending.
func waitSealed(ctx context.Context, c Chain, txID string, poll time.Duration) (TxResult, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	var last TxResult
	for {
		res, err := c.TxStatus(ctx, txID)
		switch {
		case err == nil:
			last = res
			if res.Final() {
				return res, nil
			}
		case ctx.Err() != nil:
			return last, fmt.Errorf("wait for %s seal: %w", txID, ctx.Err())
		case !errors.Is(err, ErrTxNotFound):
			return last, err
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("wait for %s seal: %w", txID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Registry picks the chain for a donation network.
type Registry map[domain.Network]Chain

func (r Registry) For(n domain.Network) (Chain, error) {
	c, ok := r[n]
	if !ok || c == nil {
		return nil, fmt.Errorf("no chain client for network %q: %w", n, domain.ErrProviderFailure)
	}
	return c, nil
}
