package domain

import "time"

// WalletSession is a connected wallet bound to an authenticated caller.
type WalletSession struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Address    string     `json:"address"`
	ChainID    string     `json:"chain_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	TelegramID int64      `json:"telegram_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still act for its wallet.
func (s *WalletSession) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
