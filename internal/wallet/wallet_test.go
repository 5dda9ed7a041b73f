package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/chain"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const appID = "Donate On Flow"

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memSessions struct {
	mu   sync.Mutex
	rows map[string]*domain.WalletSession
	err  error
}

func newMemSessions() *memSessions { return &memSessions{rows: map[string]*domain.WalletSession{}} }

func (m *memSessions) Create(_ context.Context, s *domain.WalletSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*domain.WalletSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok && s.RevokedAt == nil {
		t := now
		s.RevokedAt = &t
	}
	return nil
}

type fakeScripts struct {
	result bool
	err    error
	args   []chain.CadenceValue
	script string
}

func (f *fakeScripts) ExecuteScript(_ context.Context, script string, args ...chain.CadenceValue) (chain.CadenceValue, error) {
	f.script, f.args = script, args
	if f.err != nil {
		return chain.CadenceValue{}, f.err
	}
	if f.result {
		return chain.CadenceValue{Type: "Bool", Value: []byte("true")}, nil
	}
	return chain.CadenceValue{Type: "Bool", Value: []byte("false")}, nil
}

type fakeTokens struct {
	claims map[string]any
	err    error
}

func (f fakeTokens) Verify(context.Context, string) (map[string]any, error) { return f.claims, f.err }

func personalSign(t *testing.T, msg string) (address, sig string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	s[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(s)
}

func newTestManager(sessions *memSessions, providers ...Provider) (*Manager, *MemoryChallenges) {
	ch := NewMemoryChallenges()
	ch.now = func() time.Time { return now }
	m := NewManager(ManagerOptions{
		AppID:      appID,
		Sessions:   sessions,
		Challenges: ch,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	}, providers...)
	return m, ch
}

func TestAccountProofMessage(t *testing.T) {
	nonce := strings.Repeat("ab", 32)
	msg, err := AccountProofMessage(appID, "0xf8d6e0586b0a20c7", nonce)
	if err != nil {
		t.Fatalf("AccountProofMessage: %v", err)
	}
	if strings.HasPrefix(msg, hex.EncodeToString([]byte("FCL-ACCOUNT-PROOF"))) {
		t.Fatalf("message carries the domain tag, FCLCrypto adds it: %s", msg)
	}
	raw, err := hex.DecodeString(msg)
	if err != nil {
		t.Fatalf("message is not hex: %v", err)
	}
	var fields [][]byte
	if err := rlp.DecodeBytes(raw, &fields); err != nil {
		t.Fatalf("rlp decode: %v", err)
	}
	if len(fields) != 3 || string(fields[0]) != appID || hex.EncodeToString(fields[1]) != "f8d6e0586b0a20c7" || hex.EncodeToString(fields[2]) != nonce {
		t.Fatalf("fields = %x", fields)
	}

	if _, err := AccountProofMessage(appID, "0xf8d6e0586b0a20c7", "abcd"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("short nonce err = %v", err)
	}
	if _, err := AccountProofMessage(appID, "0x01020304050607080910", nonce); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("long address err = %v", err)
	}
}

func TestFlowProviderConnect(t *testing.T) {
	nonce := strings.Repeat("01", 32)
	req := ConnectRequest{
		Provider:   "flow",
		Nonce:      nonce,
		Address:    "0xf8d6e0586b0a20c7",
		Signatures: []FlowSignature{{Address: "f8d6e0586b0a20c7", KeyID: 0, Signature: "0xdeadbeef"}},
	}

	scripts := &fakeScripts{result: true}
	p, err := NewFlowProvider(appID, "testnet", scripts)
	if err != nil {
		t.Fatalf("NewFlowProvider: %v", err)
	}
	conn, err := p.Connect(context.Background(), req)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Address != "0xf8d6e0586b0a20c7" || conn.ChainID != "flow-testnet" {
		t.Fatalf("conn = %+v", conn)
	}
	want, _ := AccountProofMessage(appID, req.Address, nonce)
	if string(scripts.args[1].Value) != `"`+want+`"` {
		t.Fatalf("message arg = %s, want untagged %s", scripts.args[1].Value, want)
	}
	if !strings.Contains(scripts.script, "import FCLCrypto from 0x74daa6f9c7ef24b1") || len(scripts.args) != 4 {
		t.Fatalf("script call = %q %d args", scripts.script, len(scripts.args))
	}
	if string(scripts.args[3].Value) != `[{"type":"String","value":"deadbeef"}]` {
		t.Fatalf("signatures arg = %s", scripts.args[3].Value)
	}

	scripts.result = false
	if _, err := p.Connect(context.Background(), req); !errors.Is(err, ErrProof) {
		t.Fatalf("rejected proof err = %v", err)
	}
	scripts.err = errors.New("node down")
	if _, err := p.Connect(context.Background(), req); err == nil || errors.Is(err, ErrProof) {
		t.Fatalf("node failure err = %v", err)
	}

	other := req
	other.Signatures = []FlowSignature{{Address: "0x01", Signature: "aa"}}
	if _, err := p.Connect(context.Background(), other); !errors.Is(err, ErrProof) {
		t.Fatalf("foreign signature err = %v", err)
	}
	if _, err := NewFlowProvider(appID, "emulator", scripts); err == nil {
		t.Fatal("expected unsupported network error")
	}
}

func TestOKXProviderConnect(t *testing.T) {
	nonce := "n-1"
	address, sig := personalSign(t, ChallengeMessage(appID, nonce))
	p := NewOKXProvider(appID, "747", "545")

	conn, err := p.Connect(context.Background(), ConnectRequest{
		Nonce:     nonce,
		Account:   "flow:747:" + address,
		Chain:     "flow:747",
		Signature: sig,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Address != strings.ToLower(address) || conn.ChainID != "747" {
		t.Fatalf("conn = %+v", conn)
	}

	cases := []struct {
		name string
		req  ConnectRequest
		want error
	}{
		{name: "no nonce", req: ConnectRequest{Account: "flow:747:" + address, Signature: sig}, want: domain.ErrInvalidInput},
		{name: "not caip10", req: ConnectRequest{Nonce: nonce, Account: address, Signature: sig}, want: domain.ErrInvalidInput},
		{name: "chain mismatch", req: ConnectRequest{Nonce: nonce, Account: "flow:747:" + address, Chain: "flow:545", Signature: sig}, want: domain.ErrInvalidInput},
		{name: "unsupported chain", req: ConnectRequest{Nonce: nonce, Account: "eip155:1:" + address, Signature: sig}, want: domain.ErrInvalidInput},
		{name: "other nonce", req: ConnectRequest{Nonce: "n-2", Account: "flow:747:" + address, Signature: sig}, want: ErrProof},
		{name: "garbage signature", req: ConnectRequest{Nonce: nonce, Account: "flow:747:" + address, Signature: "0x1234"}, want: ErrProof},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Connect(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseCAIP(t *testing.T) {
	ns, ref, addr, err := ParseCAIP10("eip155:545:0xabc")
	if err != nil || ns != "eip155" || ref != "545" || addr != "0xabc" {
		t.Fatalf("ParseCAIP10 = %s %s %s %v", ns, ref, addr, err)
	}
	if _, _, err := ParseCAIP2("flow:747:x"); err == nil {
		t.Fatal("expected CAIP-2 error")
	}
}

func TestPrivyProviderConnect(t *testing.T) {
	p := NewPrivyProvider(appID, "545", fakeTokens{claims: map[string]any{"sub": "did:privy:1", "email": "a@b.c"}})

	conn, err := p.Connect(context.Background(), ConnectRequest{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.UserID != "did:privy:1" || conn.Address != "" || conn.Email != "a@b.c" {
		t.Fatalf("conn without wallet = %+v", conn)
	}

	address, sig := personalSign(t, ChallengeMessage(appID, "n"))
	conn, err = p.Connect(context.Background(), ConnectRequest{AccessToken: "tok", Nonce: "n", Address: address, Signature: sig})
	if err != nil {
		t.Fatalf("Connect with wallet: %v", err)
	}
	if conn.Address != strings.ToLower(address) || conn.ChainID != "545" {
		t.Fatalf("conn with wallet = %+v", conn)
	}

	if _, err := p.Connect(context.Background(), ConnectRequest{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing token err = %v", err)
	}
	bad := NewPrivyProvider(appID, "545", fakeTokens{err: errors.New("expired")})
	if _, err := bad.Connect(context.Background(), ConnectRequest{AccessToken: "tok"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("bad token err = %v", err)
	}
}

func TestManagerConnectShapes(t *testing.T) {
	sessions := newMemSessions()
	m, _ := newTestManager(sessions, NewOKXProvider(appID, "747"))

	ch, err := m.Challenge(context.Background())
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if len(ch.Nonce) != 64 || ch.Message != ChallengeMessage(appID, ch.Nonce) {
		t.Fatalf("challenge = %+v", ch)
	}
	address, sig := personalSign(t, ch.Message)
	req := ConnectRequest{Provider: "okx", Nonce: ch.Nonce, Account: "flow:747:" + address, Signature: sig}

	state, session, err := m.Connect(context.Background(), req, Caller{TelegramID: 99})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !state.Connected || !state.LoggedIn || state.Display != DisplayAddress(strings.ToLower(address)) || state.ChainID != "747" {
		t.Fatalf("connected state = %+v", state)
	}
	if session.TelegramID != 99 || !session.ExpiresAt.After(now) {
		t.Fatalf("session = %+v", session)
	}
	if got := m.State(context.Background(), session.ID); got.Address != session.Address {
		t.Fatalf("State = %+v", got)
	}

	// The nonce is single use.
	state, _, err = m.Connect(context.Background(), req, Caller{})
	if !errors.Is(err, ErrChallenge) || state.Connected || state.Display != "Connect Wallet" {
		t.Fatalf("replay: state %+v err %v", state, err)
	}

	state, err = m.Disconnect(context.Background(), session.ID)
	if err != nil || state != Disconnected() {
		t.Fatalf("Disconnect = %+v, %v", state, err)
	}
	if _, err := m.Lookup(context.Background(), session.ID); !errors.Is(err, domain.ErrWalletRequired) {
		t.Fatalf("Lookup after disconnect err = %v", err)
	}
	if got := m.State(context.Background(), session.ID); got != Disconnected() {
		t.Fatalf("State after disconnect = %+v", got)
	}

	state, err = m.Disconnect(context.Background(), "unknown")
	if err != nil || state != Disconnected() {
		t.Fatalf("Disconnect unknown = %+v, %v", state, err)
	}
}

func TestManagerFailureLeavesDisconnected(t *testing.T) {
	sessions := newMemSessions()
	m, _ := newTestManager(sessions, NewOKXProvider(appID, "747"))

	state, _, err := m.Connect(context.Background(), ConnectRequest{Provider: "metamask"}, Caller{})
	if !errors.Is(err, ErrUnknownProvider) || state != Disconnected() {
		t.Fatalf("unknown provider: %+v %v", state, err)
	}

	ch, _ := m.Challenge(context.Background())
	state, _, err = m.Connect(context.Background(), ConnectRequest{Provider: "okx", Nonce: ch.Nonce, Account: "flow:747:0x0000000000000000000000000000000000000001", Signature: "0x00"}, Caller{})
	if !errors.Is(err, ErrProof) || state != Disconnected() {
		t.Fatalf("bad proof: %+v %v", state, err)
	}
	if len(sessions.rows) != 0 {
		t.Fatalf("no session should be stored, got %d", len(sessions.rows))
	}

	sessions.err = errors.New("db down")
	ch, _ = m.Challenge(context.Background())
	address, sig := personalSign(t, ch.Message)
	state, _, err = m.Connect(context.Background(), ConnectRequest{Provider: "okx", Nonce: ch.Nonce, Account: "flow:747:" + address, Signature: sig}, Caller{})
	if err == nil || state != Disconnected() {
		t.Fatalf("store failure: %+v %v", state, err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	c := NewMemoryChallenges()
	clock := now
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = c.Put(ctx, "a", time.Minute)
	clock = clock.Add(2 * time.Minute)
	if ok, _ := c.Consume(ctx, "a"); ok {
		t.Fatal("expired nonce was accepted")
	}
	_ = c.Put(ctx, "b", time.Minute)
	if ok, _ := c.Consume(ctx, "b"); !ok {
		t.Fatal("live nonce rejected")
	}
	if ok, _ := c.Consume(ctx, "b"); ok {
		t.Fatal("nonce consumed twice")
	}
}

func TestStateOf(t *testing.T) {
	s := &domain.WalletSession{ID: "s", Provider: "privy", UserID: "did:privy:1", ExpiresAt: now.Add(time.Hour)}
	st := StateOf(s, now)
	if st.Connected || !st.LoggedIn || st.Display != "Connect Wallet" {
		t.Fatalf("privy without wallet = %+v", st)
	}
	if StateOf(s, now.Add(2*time.Hour)) != Disconnected() {
		t.Fatal("expired session should render disconnected")
	}
	if got := DisplayAddress("0x1234567890abcdef1234"); got != "0x1234...1234" {
		t.Fatalf("DisplayAddress = %q", got)
	}
}
