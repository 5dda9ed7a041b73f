package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
)

type ManagerOptions struct {
	AppID        string
	Sessions     domain.WalletSessionRepository
	Challenges   ChallengeStore
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Manager owns the provider set and the session lifecycle.
type Manager struct {
	opts      ManagerOptions
	providers map[string]Provider
}

func NewManager(opts ManagerOptions, providers ...Provider) *Manager {
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = 5 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Challenges == nil {
		opts.Challenges = NewMemoryChallenges()
	}
	m := &Manager{opts: opts, providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		m.providers[p.Name()] = p
	}
	return m
}

// Providers lists the configured provider names.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for n := range m.providers {
		names = append(names, n)
	}
	return names
}

// Challenge issues a nonce for the next Connect.
func (m *Manager) Challenge(ctx context.Context) (*Challenge, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if err := m.opts.Challenges.Put(ctx, nonce, m.opts.ChallengeTTL); err != nil {
		return nil, err
	}
	return &Challenge{
		Nonce:     nonce,
		Message:   ChallengeMessage(m.opts.AppID, nonce),
		AppID:     m.opts.AppID,
		ExpiresAt: m.opts.Now().Add(m.opts.ChallengeTTL),
	}, nil
}

// Caller is the already authenticated party a wallet is bound to.
type Caller struct {
	TelegramID int64
}

// Connect verifies req with its provider and persists a session. On any
// failure the returned state is the disconnected shape.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest, caller Caller) (State, *domain.WalletSession, error) {
	p, ok := m.providers[req.Provider]
	if !ok {
		return Disconnected(), nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	// The nonce is spent before verification so a rejected proof cannot be retried.
	if req.Nonce != "" {
		live, err := m.opts.Challenges.Consume(ctx, req.Nonce)
		if err != nil {
			return Disconnected(), nil, err
		}
		if !live {
			m.opts.Metrics.WalletConnect(p.Name(), false)
			return Disconnected(), nil, ErrChallenge
		}
	}

	conn, err := p.Connect(ctx, req)
	if err != nil {
		m.opts.Metrics.WalletConnect(p.Name(), false)
		m.opts.Logger.Warn().Err(err).Str("provider", p.Name()).Msg("wallet connect rejected")
		return Disconnected(), nil, err
	}

	now := m.opts.Now()
	session := &domain.WalletSession{
		ID:         uuid.NewString(),
		Provider:   conn.Provider,
		Address:    conn.Address,
		ChainID:    conn.ChainID,
		UserID:     conn.UserID,
		Email:      conn.Email,
		TelegramID: caller.TelegramID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.opts.SessionTTL),
	}
	if err := m.opts.Sessions.Create(ctx, session); err != nil {
		_ = p.Disconnect(ctx, conn)
		return Disconnected(), nil, err
	}
	m.opts.Metrics.WalletConnect(p.Name(), true)
	m.opts.Logger.Info().
		Str("provider", session.Provider).
		Str("address", session.Address).
		Str("session_id", session.ID).
		Msg("wallet connected")
	return StateOf(session, now), session, nil
}

// Disconnect revokes sessionID. The returned state is always disconnected,
// also when the session was unknown.
func (m *Manager) Disconnect(ctx context.Context, sessionID string) (State, error) {
	if sessionID == "" {
		return Disconnected(), nil
	}
	session, err := m.opts.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Disconnected(), nil
		}
		return Disconnected(), err
	}
	if p, ok := m.providers[session.Provider]; ok {
		conn := &Connection{Provider: session.Provider, Address: session.Address, ChainID: session.ChainID, UserID: session.UserID}
		if err := p.Disconnect(ctx, conn); err != nil {
			m.opts.Logger.Warn().Err(err).Str("provider", session.Provider).Msg("provider disconnect failed")
		}
	}
	if err := m.opts.Sessions.Revoke(ctx, sessionID); err != nil {
		return Disconnected(), err
	}
	m.opts.Logger.Info().Str("session_id", sessionID).Msg("wallet disconnected")
	return Disconnected(), nil
}

// Lookup returns the active session for sessionID.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*domain.WalletSession, error) {
	if sessionID == "" {
		return nil, domain.ErrWalletRequired
	}
	session, err := m.opts.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrWalletRequired
		}
		return nil, err
	}
	if !session.Active(m.opts.Now()) {
		return nil, domain.ErrWalletRequired
	}
	return session, nil
}

// State renders the current shape for sessionID.
func (m *Manager) State(ctx context.Context, sessionID string) State {
	session, err := m.Lookup(ctx, sessionID)
	if err != nil {
		return Disconnected()
	}
	return StateOf(session, m.opts.Now())
}
