package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/utils"
)

// AccountProvider keeps identities in the accounts table.
type AccountProvider struct {
	db         *gorm.DB
	exchangers map[string]Exchanger
	revoked    *utils.TokenBlacklist
	logger     *zap.Logger
}

// NewAccountProvider builds the provider. exchangers maps a provider name such
// as models.ProviderGoogle to its code exchanger; nil entries are ignored.
func NewAccountProvider(db *gorm.DB, revoked *utils.TokenBlacklist, exchangers map[string]Exchanger, logger *zap.Logger) *AccountProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	ex := map[string]Exchanger{}
	for name, e := range exchangers {
		if e != nil {
			ex[name] = e
		}
	}
	return &AccountProvider{db: db, exchangers: ex, revoked: revoked, logger: logger}
}

// Exchanger returns the configured exchanger for provider.
func (p *AccountProvider) Exchanger(provider string) (Exchanger, bool) {
	e, ok := p.exchangers[provider]
	return e, ok
}

func (p *AccountProvider) SignInAnonymous(ctx context.Context) (Identity, error) {
	id := uuid.NewString()
	acct := models.Account{
		ID:         id,
		Anonymous:  true,
		Provider:   models.ProviderAnonymous,
		ProviderID: id,
	}
	if err := p.db.WithContext(ctx).Create(&acct).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return FromAccount(&acct), nil
}

// SignInWithFederated resolves the provider account, creating a new identity
// the first time a provider subject is seen. It never upgrades an anonymous
// identity in place, so the caller decides whether data must be migrated.
func (p *AccountProvider) SignInWithFederated(ctx context.Context, cred FederatedCredential) (Identity, error) {
	if cred.Error != "" {
		return Identity{}, ErrFederatedCancelled
	}
	ex, ok := p.exchangers[cred.Provider]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s not configured", ErrProviderUnavailable, cred.Provider)
	}
	if strings.TrimSpace(cred.Code) == "" {
		return Identity{}, ErrInvalidCredential
	}

	prof, err := ex.Exchange(ctx, cred.Code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return Identity{}, ErrInvalidCredential
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var acct models.Account
	err = p.db.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", cred.Provider, prof.Subject).
		First(&acct).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{}
		if email := strings.ToLower(prof.Email); email != "" && email != acct.Email {
			updates["email"] = email
			acct.Email = email
		}
		if prof.DisplayName != "" && prof.DisplayName != acct.DisplayName {
			updates["display_name"] = prof.DisplayName
			acct.DisplayName = prof.DisplayName
		}
		if len(updates) > 0 {
			if err := p.db.WithContext(ctx).Model(&acct).Updates(updates).Error; err != nil {
				p.logger.Warn("refresh federated account failed", zap.String("account", acct.ID), zap.Error(err))
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		acct = models.Account{
			ID:          uuid.NewString(),
			Provider:    cred.Provider,
			ProviderID:  prof.Subject,
			Email:       strings.ToLower(prof.Email),
			DisplayName: prof.DisplayName,
		}
		if err := p.db.WithContext(ctx).Create(&acct).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			// a concurrent first sign-in for the same subject won
			if err := p.db.WithContext(ctx).
				Where("provider = ? AND provider_id = ?", cred.Provider, prof.Subject).
				First(&acct).Error; err != nil {
				return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
		}
	default:
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return FromAccount(&acct), nil
}

func (p *AccountProvider) SignInWithPassword(ctx context.Context, cred PasswordCredential) (Identity, error) {
	email, err := normalizeEmail(cred.Email)
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}
	var acct models.Account
	err = p.db.WithContext(ctx).
		Where("provider = ? AND email = ?", models.ProviderPassword, email).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrInvalidCredential
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if !utils.CheckPassword(acct.PasswordHash, cred.Password) {
		return Identity{}, ErrInvalidCredential
	}
	return FromAccount(&acct), nil
}

func (p *AccountProvider) CreateAccount(ctx context.Context, cred PasswordCredential) (Identity, error) {
	email, err := normalizeEmail(cred.Email)
	if err != nil {
		return Identity{}, err
	}
	if !utils.PasswordStrongEnough(cred.Password) {
		return Identity{}, ErrWeakPassword
	}

	var count int64
	if err := p.db.WithContext(ctx).Model(&models.Account{}).
		Where("email = ? AND anonymous = ?", email, false).
		Count(&count).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if count > 0 {
		return Identity{}, ErrEmailInUse
	}

	hash, err := utils.HashPassword(cred.Password)
	if err != nil {
		return Identity{}, err
	}
	acct := models.Account{
		ID:           uuid.NewString(),
		Provider:     models.ProviderPassword,
		ProviderID:   email,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  localPart(email),
	}
	if err := p.db.WithContext(ctx).Create(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Identity{}, ErrEmailInUse
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return FromAccount(&acct), nil
}

func (p *AccountProvider) SignOut(ctx context.Context, token string, expiresAt time.Time) error {
	if p.revoked == nil || token == "" {
		return nil
	}
	return p.revoked.Revoke(ctx, token, expiresAt)
}

func (p *AccountProvider) Lookup(ctx context.Context, id string) (Identity, error) {
	var acct models.Account
	err := p.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrUnknownIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return FromAccount(&acct), nil
}

func (p *AccountProvider) Delete(ctx context.Context, id string) error {
	if err := p.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
