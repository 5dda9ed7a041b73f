package wallet

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// verifyPersonalSign checks a personal_sign signature of message by address.
func verifyPersonalSign(address, message, sigHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: address is not an EVM address", ErrBadRequest)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be 65 hex bytes", ErrProof)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProof, err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return fmt.Errorf("%w: signer does not match address", ErrProof)
	}
	return nil
}

func normalizeEVMAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
