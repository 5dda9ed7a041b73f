// Package wallet connects wallets from several providers to server-side
// sessions. Every provider proves control of an address (or an identity) and
// the Manager turns that proof into a persisted domain.WalletSession.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

var (
	ErrUnknownProvider = fmt.Errorf("wallet: unknown provider: %w", domain.ErrInvalidInput)
	ErrChallenge       = fmt.Errorf("wallet: challenge invalid or expired: %w", domain.ErrUnauthorized)
	ErrProof           = fmt.Errorf("wallet: proof rejected: %w", domain.ErrUnauthorized)
	ErrBadRequest      = fmt.Errorf("wallet: malformed connect request: %w", domain.ErrInvalidInput)
)

// Provider is one wallet SDK's server-side counterpart.
type Provider interface {
	Name() string
	Connect(ctx context.Context, req ConnectRequest) (*Connection, error)
	Disconnect(ctx context.Context, conn *Connection) error
}

// FlowSignature is one entry of an FCL account-proof composite signature.
type FlowSignature struct {
	Address   string `json:"addr"`
	KeyID     int    `json:"keyId"`
	Signature string `json:"signature"`
}

// ConnectRequest carries whichever proof the chosen provider understands.
type ConnectRequest struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`

	// flow: FCL account proof.
	Address    string          `json:"address"`
	Signatures []FlowSignature `json:"signatures,omitempty"`

	// okx: CAIP-10 account, CAIP-2 chain and a personal_sign signature over
	// the challenge message. Privy reuses Address and Signature for a linked
	// wallet.
	Account   string `json:"account,omitempty"`
	Chain     string `json:"chain,omitempty"`
	Signature string `json:"signature,omitempty"`

	// privy: access token issued to the embedded wallet user.
	AccessToken string `json:"access_token,omitempty"`
}

// Connection is a verified identity returned by a provider.
type Connection struct {
	Provider string
	Address  string
	ChainID  string
	UserID   string
	Email    string
}

// State is what a client renders for the wallet button: the "connect" shape
// when no wallet is linked, the address display shape otherwise.
type State struct {
	Connected bool       `json:"connected"`
	LoggedIn  bool       `json:"logged_in"`
	Display   string     `json:"display"`
	Provider  string     `json:"provider,omitempty"`
	Address   string     `json:"address,omitempty"`
	ChainID   string     `json:"chain_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

const connectLabel = "Connect Wallet"

// Disconnected is the shape of a caller without a wallet.
func Disconnected() State {
	return State{Display: connectLabel}
}

// StateOf renders session at now. Inactive sessions render disconnected.
func StateOf(s *domain.WalletSession, now time.Time) State {
	if !s.Active(now) {
		return Disconnected()
	}
	st := State{
		LoggedIn:  true,
		Display:   connectLabel,
		Provider:  s.Provider,
		ChainID:   s.ChainID,
		UserID:    s.UserID,
		SessionID: s.ID,
	}
	exp := s.ExpiresAt
	st.ExpiresAt = &exp
	if s.Address != "" {
		st.Connected = true
		st.Address = s.Address
		st.Display = DisplayAddress(s.Address)
	}
	return st
}

// DisplayAddress shortens addr to its first six characters.
func DisplayAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func requireNonce(req ConnectRequest) error {
	if req.Nonce == "" {
		return fmt.Errorf("%w: nonce is required", ErrBadRequest)
	}
	return nil
}
