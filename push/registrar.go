// Package push registers device tokens and sends the daily reminder.
package push

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TokenStore persists push tokens on profiles.
type TokenStore interface {
	SetPushToken(ctx context.Context, userID, token string) error
}

// RegistrationResult is the outcome of a best-effort token registration.
// Callers are free to ignore it.
type RegistrationResult struct {
	Registered bool   `json:"registered"`
	Reason     string `json:"reason,omitempty"`
	Err        error  `json:"-"`
}

// Registrar stores device tokens, last write wins.
type Registrar struct {
	tokens TokenStore
	logger *zap.Logger
}

func NewRegistrar(tokens TokenStore, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{tokens: tokens, logger: logger}
}

// Register saves token for userID. It never fails the caller: problems are
// reported in the result and logged.
func (r *Registrar) Register(ctx context.Context, userID, token string) RegistrationResult {
	token = strings.TrimSpace(token)
	if r == nil || r.tokens == nil {
		return RegistrationResult{Reason: "push disabled"}
	}
	if userID == "" || token == "" {
		return RegistrationResult{Reason: "no token"}
	}
	if err := r.tokens.SetPushToken(ctx, userID, token); err != nil {
		r.logger.Warn("push token registration failed", zap.String("user_id", userID), zap.Error(err))
		return RegistrationResult{Reason: "store error", Err: err}
	}
	return RegistrationResult{Registered: true}
}
