package wallet

import (
	"context"
	"fmt"
	"strings"
)

// OKXProvider accepts OKX Connect sessions on Flow EVM. The wallet signs the
// challenge message with personal_sign.
type OKXProvider struct {
	appID  string
	chains map[string]bool
}

// NewOKXProvider accepts the given EVM chain references, e.g. "747" or "545".
func NewOKXProvider(appID string, chainIDs ...string) *OKXProvider {
	chains := make(map[string]bool, len(chainIDs))
	for _, c := range chainIDs {
		chains[c] = true
	}
	return &OKXProvider{appID: appID, chains: chains}
}

func (p *OKXProvider) Name() string { return "okx" }

// ParseCAIP10 splits "namespace:reference:address".
func ParseCAIP10(account string) (namespace, reference, address string, err error) {
	parts := strings.Split(account, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: account %q is not CAIP-10", ErrBadRequest, account)
	}
	return parts[0], parts[1], parts[2], nil
}

// ParseCAIP2 splits "namespace:reference".
func ParseCAIP2(chainID string) (namespace, reference string, err error) {
	ns, ref, ok := strings.Cut(chainID, ":")
	if !ok || ns == "" || ref == "" || strings.Contains(ref, ":") {
		return "", "", fmt.Errorf("%w: chain %q is not CAIP-2", ErrBadRequest, chainID)
	}
	return ns, ref, nil
}

func (p *OKXProvider) Connect(_ context.Context, req ConnectRequest) (*Connection, error) {
	if err := requireNonce(req); err != nil {
		return nil, err
	}
	ns, ref, address, err := ParseCAIP10(req.Account)
	if err != nil {
		return nil, err
	}
	if ns != "flow" && ns != "eip155" {
		return nil, fmt.Errorf("%w: namespace %q", ErrBadRequest, ns)
	}
	if req.Chain != "" {
		cns, cref, err := ParseCAIP2(req.Chain)
		if err != nil {
			return nil, err
		}
		if cns != ns || cref != ref {
			return nil, fmt.Errorf("%w: account is not on chain %s", ErrBadRequest, req.Chain)
		}
	}
	if len(p.chains) > 0 && !p.chains[ref] {
		return nil, fmt.Errorf("%w: chain %s is not supported", ErrBadRequest, ref)
	}
	if err := verifyPersonalSign(address, ChallengeMessage(p.appID, req.Nonce), req.Signature); err != nil {
		return nil, err
	}
	return &Connection{Provider: p.Name(), Address: normalizeEVMAddress(address), ChainID: ref}, nil
}

// Disconnect has nothing to release; the OKX bridge session is client side.
func (p *OKXProvider) Disconnect(context.Context, *Connection) error { return nil }

var _ Provider = (*OKXProvider)(nil)
