package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

// evmBackend is the subset of ethclient.Client used here.
type evmBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMClient reads receipts from Flow EVM.
type EVMClient struct {
	backend       evmBackend
	confirmations uint64
}

// DialEVM connects to the JSON-RPC endpoint at url.
func DialEVM(ctx context.Context, url string, confirmations uint64) (*EVMClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &EVMClient{backend: c, confirmations: confirmations}, nil
}

func (c *EVMClient) Name() string { return "flow-evm" }

// NormalizeEVMTxHash lowercases h and checks it is a 0x-prefixed 32 byte hash.
func NormalizeEVMTxHash(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	b, err := hexutil.Decode(h)
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidTx, h)
	}
	return h, nil
}

func (c *EVMClient) TxStatus(ctx context.Context, txID string) (TxResult, error) {
	id, err := NormalizeEVMTxHash(txID)
	if err != nil {
		return TxResult{}, err
	}
	hash := common.HexToHash(id)
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		if _, pending, txErr := c.backend.TransactionByHash(ctx, hash); txErr == nil && pending {
			return TxResult{ID: id, Status: StatusPending, Raw: "pending"}, nil
		}
		return TxResult{ID: id}, ErrTxNotFound
	}
	if err != nil {
		return TxResult{ID: id}, fmt.Errorf("evm receipt: %w", err)
	}

	res := TxResult{ID: id, BlockID: receipt.BlockHash.Hex()}
	if c.confirmations > 0 && receipt.BlockNumber != nil {
		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return res, fmt.Errorf("evm block number: %w", err)
		}
		depth := new(big.Int).Sub(new(big.Int).SetUint64(head), receipt.BlockNumber)
		if depth.Cmp(new(big.Int).SetUint64(c.confirmations)) < 0 {
			res.Status, res.Raw = StatusPending, "confirming"
			return res, nil
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		res.Status, res.Raw, res.Error = StatusFailed, "reverted", "transaction reverted"
		return res, nil
	}
	res.Status, res.Raw = StatusSealed, "success"
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 {
			res.Events = append(res.Events, Event{Type: l.Address.Hex() + ":" + l.Topics[0].Hex(), Payload: l.Data})
		}
	}

	tx, _, err := c.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return res, fmt.Errorf("evm transaction: %w", err)
	}
	from, err := c.backend.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return res, fmt.Errorf("evm sender: %w", err)
	}
	res.Sender = strings.ToLower(from.Hex())
	if to := tx.To(); to != nil && tx.Value().Sign() > 0 {
		res.Transfers = append(res.Transfers, Transfer{To: strings.ToLower(to.Hex()), Amount: WeiToAmount(tx.Value())})
	}
	return res, nil
}

// weiPerUnit converts 18-decimal native FLOW to the 8-decimal Amount.
var weiPerUnit = big.NewInt(1e10)

// WeiToAmount truncates wei to whole Amount units, saturating at the
// largest Amount.
func WeiToAmount(wei *big.Int) domain.Amount {
	units := new(big.Int).Quo(wei, weiPerUnit)
	if !units.IsInt64() {
		return domain.Amount(math.MaxInt64)
	}
	return domain.Amount(units.Int64())
}

func (c *EVMClient) WaitSealed(ctx context.Context, txID string, poll time.Duration) (TxResult, error) {
	return waitSealed(ctx, c, txID, poll)
}
