package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const flowDefaultTimeout = 15 * time.Second

// FlowClient talks to a Flow access node over its REST API.
type FlowClient struct {
	baseURL string
	client  *http.Client
}

func NewFlowClient(baseURL string, client *http.Client) *FlowClient {
	if client == nil {
		client = &http.Client{Timeout: flowDefaultTimeout}
	}
	return &FlowClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *FlowClient) Name() string { return "flow" }

type flowTxResult struct {
	BlockID      string `json:"block_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	Execution    string `json:"execution"`
	ErrorMessage string `json:"error_message"`
	Events       []struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
	} `json:"events"`
}

type flowTx struct {
	Payer string `json:"payer"`
}

// NormalizeFlowTxID lowercases id and checks it is 32 bytes of hex.
func NormalizeFlowTxID(id string) (string, error) {
	id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
	if b, err := hex.DecodeString(id); err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTx, id)
	}
	return id, nil
}

func (c *FlowClient) TxStatus(ctx context.Context, txID string) (TxResult, error) {
	id, err := NormalizeFlowTxID(txID)
	if err != nil {
		return TxResult{}, err
	}
	var raw flowTxResult
	if err := c.get(ctx, "/v1/transaction_results/"+id, &raw); err != nil {
		return TxResult{ID: id}, err
	}
	res := TxResult{ID: id, Raw: raw.Status, BlockID: raw.BlockID, Error: raw.ErrorMessage}
	switch {
	case raw.Status == "Expired":
		res.Status = StatusExpired
	case raw.Status != "Sealed":
		res.Status = StatusPending
	case raw.ErrorMessage != "" || raw.StatusCode != 0 || raw.Execution == "Failure":
		res.Status = StatusFailed
	default:
		res.Status = StatusSealed
	}
	for _, e := range raw.Events {
		payload, _ := base64.StdEncoding.DecodeString(e.Payload)
		res.Events = append(res.Events, Event{Type: e.Type, Payload: payload})
		if strings.HasSuffix(e.Type, ".TokensDeposited") {
			if t, ok := flowDeposit(payload); ok {
				res.Transfers = append(res.Transfers, t)
			}
		}
	}
	if res.Status == StatusSealed {
		var tx flowTx
		if err := c.get(ctx, "/v1/transactions/"+id, &tx); err != nil {
			return res, err
		}
		res.Sender = FlowAddress(tx.Payer)
	}
	return res, nil
}

func (c *FlowClient) WaitSealed(ctx context.Context, txID string, poll time.Duration) (TxResult, error) {
	return waitSealed(ctx, c, txID, poll)
}

// ExecuteScript runs a read-only Cadence script against the latest sealed
// block and returns the decoded JSON-Cadence result.
func (c *FlowClient) ExecuteScript(ctx context.Context, script string, args ...CadenceValue) (CadenceValue, error) {
	encArgs := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return CadenceValue{}, fmt.Errorf("encode script argument: %w", err)
		}
		encArgs = append(encArgs, base64.StdEncoding.EncodeToString(b))
	}
	body, err := json.Marshal(map[string]any{
		"script":    base64.StdEncoding.EncodeToString([]byte(script)),
		"arguments": encArgs,
	})
	if err != nil {
		return CadenceValue{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scripts?block_height=sealed", bytes.NewReader(body))
	if err != nil {
		return CadenceValue{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var encoded string
	if err := c.do(req, &encoded); err != nil {
		return CadenceValue{}, err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return CadenceValue{}, fmt.Errorf("decode script result: %w", err)
	}
	var out CadenceValue
	if err := json.Unmarshal(decoded, &out); err != nil {
		return CadenceValue{}, fmt.Errorf("decode script result: %w", err)
	}
	return out, nil
}

func (c *FlowClient) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *FlowClient) do(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("flow access node: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("flow access node: read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrTxNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("flow access node: %s: %s", resp.Status, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("flow access node: decode: %w", err)
	}
	return nil
}

// flowDeposit decodes a FungibleToken TokensDeposited payload. Deposits into
// an unowned vault have a nil "to" and are skipped.
func flowDeposit(payload []byte) (Transfer, bool) {
	var ev struct {
		Value struct {
			Fields []struct {
				Name  string       `json:"name"`
				Value CadenceValue `json:"value"`
			} `json:"fields"`
		} `json:"value"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Transfer{}, false
	}
	var t Transfer
	for _, f := range ev.Value.Fields {
		v := f.Value
		if v.Type == "Optional" {
			var inner CadenceValue
			if err := json.Unmarshal(v.Value, &inner); err != nil {
				return Transfer{}, false
			}
			v = inner
		}
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			continue
		}
		switch f.Name {
		case "amount":
			a, err := domain.ParseAmount(s)
			if err != nil {
				return Transfer{}, false
			}
			t.Amount = a
		case "to":
			t.To = FlowAddress(s)
		}
	}
	return t, t.To != "" && t.Amount.IsPositive()
}

// FlowAddress renders a Flow address as 0x-prefixed, 16 hex digit lowercase.
func FlowAddress(addr string) string {
	a := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(addr), "0x"))
	if a == "" {
		return ""
	}
	if len(a) < 16 {
		a = strings.Repeat("0", 16-len(a)) + a
	}
	return "0x" + a
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
