package wallet

import (
	"context"
	"fmt"
	"strings"
)

// TokenVerifier validates a signed access token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (map[string]any, error)
}

// PrivyProvider signs users in with a Privy access token. A linked EVM wallet
// is optional and must sign the challenge like an OKX wallet.
type PrivyProvider struct {
	appID   string
	chainID string
	tokens  TokenVerifier
}

func NewPrivyProvider(appID, chainID string, tokens TokenVerifier) *PrivyProvider {
	return &PrivyProvider{appID: appID, chainID: chainID, tokens: tokens}
}

func (p *PrivyProvider) Name() string { return "privy" }

func (p *PrivyProvider) Connect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	if strings.TrimSpace(req.AccessToken) == "" {
		return nil, fmt.Errorf("%w: access_token is required", ErrBadRequest)
	}
	claims, err := p.tokens.Verify(ctx, req.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProof, err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrProof)
	}
	conn := &Connection{Provider: p.Name(), UserID: sub}
	if email, ok := claims["email"].(string); ok {
		conn.Email = email
	}
	if req.Address == "" {
		return conn, nil
	}
	if err := requireNonce(req); err != nil {
		return nil, err
	}
	if err := verifyPersonalSign(req.Address, ChallengeMessage(p.appID, req.Nonce), req.Signature); err != nil {
		return nil, err
	}
	conn.Address = normalizeEVMAddress(req.Address)
	conn.ChainID = p.chainID
	return conn, nil
}

// Disconnect is a no-op; Privy access tokens expire on their own.
func (p *PrivyProvider) Disconnect(context.Context, *Connection) error { return nil }

var _ Provider = (*PrivyProvider)(nil)
