package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/yueliao11/Donate-On-Flow/internal/chain"
)

// ScriptRunner executes read-only Cadence scripts.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, script string, args ...chain.CadenceValue) (chain.CadenceValue, error)
}

var fclCryptoAddress = map[string]string{
	"mainnet": "0xb4b82a1c9d21d284",
	"testnet": "0x74daa6f9c7ef24b1",
}

const accountProofScript = `import FCLCrypto from %s

access(all) fun main(address: Address, message: String, keyIndices: [Int], signatures: [String]): Bool {
    return FCLCrypto.verifyAccountProofSignatures(address: address, message: message, keyIndices: keyIndices, signatures: signatures)
}`

// FlowProvider verifies FCL account proofs through the access node.
type FlowProvider struct {
	appID   string
	network string
	scripts ScriptRunner
}

func NewFlowProvider(appID, network string, scripts ScriptRunner) (*FlowProvider, error) {
	if _, ok := fclCryptoAddress[network]; !ok {
		return nil, fmt.Errorf("flow provider: unsupported network %q", network)
	}
	return &FlowProvider{appID: appID, network: network, scripts: scripts}, nil
}

func (p *FlowProvider) Name() string { return "flow" }

// AccountProofMessage encodes the message an FCL wallet signs for an account
// proof: hex of RLP(appID, address, nonce). FCLCrypto prepends the
// FCL-ACCOUNT-PROOF-V0.0 domain tag itself.
func AccountProofMessage(appID, address, nonce string) (string, error) {
	addr, err := hex.DecodeString(strings.TrimPrefix(chain.FlowAddress(address), "0x"))
	if err != nil || len(addr) != 8 {
		return "", fmt.Errorf("%w: invalid flow address %q", ErrBadRequest, address)
	}
	n, err := hex.DecodeString(nonce)
	if err != nil || len(n) < 32 {
		return "", fmt.Errorf("%w: nonce must be at least 32 hex bytes", ErrBadRequest)
	}
	encoded, err := rlp.EncodeToBytes([]any{[]byte(appID), addr, n})
	if err != nil {
		return "", fmt.Errorf("encode account proof: %w", err)
	}
	return hex.EncodeToString(encoded), nil
}

func (p *FlowProvider) Connect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	if err := requireNonce(req); err != nil {
		return nil, err
	}
	if len(req.Signatures) == 0 {
		return nil, fmt.Errorf("%w: account proof signatures are required", ErrBadRequest)
	}
	msg, err := AccountProofMessage(p.appID, req.Address, req.Nonce)
	if err != nil {
		return nil, err
	}
	address := chain.FlowAddress(req.Address)
	keyIndices := make([]chain.CadenceValue, 0, len(req.Signatures))
	sigs := make([]chain.CadenceValue, 0, len(req.Signatures))
	for _, s := range req.Signatures {
		if s.Address != "" && chain.FlowAddress(s.Address) != address {
			return nil, fmt.Errorf("%w: signature for another account", ErrProof)
		}
		keyIndices = append(keyIndices, chain.CadenceInt(s.KeyID))
		sigs = append(sigs, chain.CadenceString(strings.TrimPrefix(s.Signature, "0x")))
	}

	script := fmt.Sprintf(accountProofScript, fclCryptoAddress[p.network])
	out, err := p.scripts.ExecuteScript(ctx, script,
		chain.CadenceAddress(address),
		chain.CadenceString(msg),
		chain.CadenceArray(keyIndices...),
		chain.CadenceArray(sigs...),
	)
	if err != nil {
		return nil, fmt.Errorf("verify account proof: %w", err)
	}
	if ok, valid := out.Bool(); !valid || !ok {
		return nil, fmt.Errorf("%w: account proof signatures did not verify", ErrProof)
	}
	return &Connection{Provider: p.Name(), Address: address, ChainID: "flow-" + p.network}, nil
}

// Disconnect has nothing to release; FCL sessions live in the client.
func (p *FlowProvider) Disconnect(context.Context, *Connection) error { return nil }

var _ Provider = (*FlowProvider)(nil)
