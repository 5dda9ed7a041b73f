// Package credentials keeps third-party API keys in the integration_tokens
// table so they can be rotated without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ParseProvider accepts the AI provider names a key can be stored for.
func ParseProvider(raw string) (string, bool) {
	switch p := strings.ToLower(strings.TrimSpace(raw)); p {
	case ProviderOpenAI, ProviderGemini:
		return p, true
	case "deepseek":
		return ProviderOpenAI, true
	}
	return "", false
}

// Token is a stored key with its rotation metadata.
type Token struct {
	Provider  string
	Key       string
	SetBy     string
	UpdatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// Lookup returns the stored key for provider, or nil when none is stored.
func (s *Store) Lookup(ctx context.Context, provider string) (*Token, error) {
	t := Token{Provider: provider}
	var setBy *string
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&t.Key, &setBy, &t.UpdatedAt)
	if infra.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s key: %w", provider, err)
	}
	t.Key = strings.TrimSpace(t.Key)
	if setBy != nil {
		t.SetBy = *setBy
	}
	return &t, nil
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	t, err := s.Lookup(ctx, provider)
	if err != nil || t == nil {
		return "", err
	}
	return t.Key, nil
}

// Resolve prefers an explicitly configured key and falls back to the stored one.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

func (s *Store) SetToken(ctx context.Context, provider, key, setBy string) error {
	p, ok := ParseProvider(provider)
	if !ok {
		return fmt.Errorf("%w: unsupported provider %q", domain.ErrInvalidInput, provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: %s api key is required", domain.ErrInvalidInput, p)
	}
	props := map[string]any{"rotated_at": s.now().UTC().Format(time.RFC3339)}
	if setBy = strings.TrimSpace(setBy); setBy != "" {
		props["set_by"] = setBy
	}
	return s.upsert(ctx, p, key, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
