// Package identity issues stable user identifiers: anonymous, federated
// (Google) and email/password accounts.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/novojourney/novo/models"
)

// User-facing sign-in failures. None of them is retried automatically.
var (
	ErrInvalidCredential   = errors.New("invalid email or password")
	ErrEmailInUse          = errors.New("email already in use")
	ErrWeakPassword        = errors.New("password is too weak")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrProviderUnavailable = errors.New("sign-in provider unavailable")
	ErrFederatedCancelled  = errors.New("sign-in was cancelled")
	ErrUnknownIdentity     = errors.New("unknown identity")
)

// Identity is who the session belongs to.
type Identity struct {
	ID          string `json:"id"`
	Anonymous   bool   `json:"anonymous"`
	Provider    string `json:"provider"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Durable reports whether the identity survives the device (not anonymous).
func (i Identity) Durable() bool { return i.ID != "" && !i.Anonymous }

// FromAccount maps the stored account onto an Identity.
func FromAccount(a *models.Account) Identity {
	return Identity{
		ID:          a.ID,
		Anonymous:   a.Anonymous,
		Provider:    a.Provider,
		Email:       a.Email,
		DisplayName: a.DisplayName,
	}
}

// PasswordCredential is an email/password pair.
type PasswordCredential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedCredential carries the authorization code returned by the provider's
// consent screen. Error is the provider's error parameter, if any.
type FederatedCredential struct {
	Provider string
	Code     string
	Error    string
}

// Provider produces identities.
type Provider interface {
	SignInAnonymous(ctx context.Context) (Identity, error)
	SignInWithFederated(ctx context.Context, cred FederatedCredential) (Identity, error)
	SignInWithPassword(ctx context.Context, cred PasswordCredential) (Identity, error)
	CreateAccount(ctx context.Context, cred PasswordCredential) (Identity, error)
	// SignOut revokes a session token until it would have expired.
	SignOut(ctx context.Context, token string, expiresAt time.Time) error
	Lookup(ctx context.Context, id string) (Identity, error)
	Delete(ctx context.Context, id string) error
}
