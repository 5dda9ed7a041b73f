package repo

import (
	"context"
	"fmt"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/sqlinline"
)

type WalletSessionRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewWalletSessionRepository(sql infra.SQLExecutor) *WalletSessionRepositoryPG {
	return &WalletSessionRepositoryPG{sql: sql}
}

func (r *WalletSessionRepositoryPG) Create(ctx context.Context, s *domain.WalletSession) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertWalletSession,
		s.ID,
		s.Provider,
		s.Address,
		s.ChainID,
		s.UserID,
		s.Email,
		s.TelegramID,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet session: %w", err)
	}
	return nil
}

func (r *WalletSessionRepositoryPG) Get(ctx context.Context, id string) (*domain.WalletSession, error) {
	var s domain.WalletSession
	err := r.sql.QueryRow(ctx, sqlinline.QSelectWalletSession, id).Scan(
		&s.ID,
		&s.Provider,
		&s.Address,
		&s.ChainID,
		&s.UserID,
		&s.Email,
		&s.TelegramID,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Revoke is idempotent; revoking an unknown or already revoked session is not
// an error.
func (r *WalletSessionRepositoryPG) Revoke(ctx context.Context, id string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QRevokeWalletSession, id); err != nil {
		return fmt.Errorf("revoke wallet session: %w", err)
	}
	return nil
}

var _ domain.WalletSessionRepository = (*WalletSessionRepositoryPG)(nil)
