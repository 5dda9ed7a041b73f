package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Challenge is a single-use nonce a wallet signs to prove control.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	AppID     string    `json:"app_identifier"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeMessage is the personal_sign text for EVM wallets.
func ChallengeMessage(appID, nonce string) string {
	return appID + " wants you to connect your wallet.\n\nNonce: " + nonce
}

// ChallengeStore remembers issued nonces until they are consumed or expire.
type ChallengeStore interface {
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume reports whether nonce was live, and removes it.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// newNonce returns 32 random bytes as hex, the minimum FCL accepts.
func newNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type MemoryChallenges struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

func NewMemoryChallenges() *MemoryChallenges {
	return &MemoryChallenges{nonces: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryChallenges) Put(_ context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for n, exp := range m.nonces {
		if !now.Before(exp) {
			delete(m.nonces, n)
		}
	}
	m.nonces[nonce] = now.Add(ttl)
	return nil
}

func (m *MemoryChallenges) Consume(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.nonces[nonce]
	delete(m.nonces, nonce)
	return ok && m.now().Before(exp), nil
}

// RedisChallenges shares nonces between api replicas.
type RedisChallenges struct {
	client redis.Cmdable
	prefix string
}

func NewRedisChallenges(client redis.Cmdable) *RedisChallenges {
	return &RedisChallenges{client: client, prefix: "wallet:nonce:"}
}

func (r *RedisChallenges) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+nonce, 1, ttl).Err(); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

func (r *RedisChallenges) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := r.client.Del(ctx, r.prefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return n == 1, nil
}

var (
	_ ChallengeStore = (*MemoryChallenges)(nil)
	_ ChallengeStore = (*RedisChallenges)(nil)
)
