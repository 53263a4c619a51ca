package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novojourney/novo/identity"
	"github.com/novojourney/novo/middleware"
	"github.com/novojourney/novo/session"
	"github.com/novojourney/novo/utils"
)

// ExchangerLookup resolves the configured federated providers.
type ExchangerLookup interface {
	Exchanger(provider string) (identity.Exchanger, bool)
}

// AuthController handles anonymous, password and federated sign-in plus session teardown.
type AuthController struct {
	sessions  session.Deps
	providers ExchangerLookup
	issuer    *utils.TokenIssuer
	states    *utils.StateStore
	guard     *utils.SignupGuard
	logger    *zap.Logger
}

// NewAuthController creates an AuthController.
func NewAuthController(sessions session.Deps, providers ExchangerLookup, issuer *utils.TokenIssuer, states *utils.StateStore, guard *utils.SignupGuard, logger *zap.Logger) *AuthController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthController{
		sessions:  sessions,
		providers: providers,
		issuer:    issuer,
		states:    states,
		guard:     guard,
		logger:    logger,
	}
}

type credentialRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// oauthState is remembered between the login redirect and the callback.
type oauthState struct {
	From      string `json:"from,omitempty"`
	PushToken string `json:"pushToken,omitempty"`
}

// orchestrator builds a session for this request, resumed from the bearer token when present.
func (a *AuthController) orchestrator(ctx *gin.Context, userID string) *session.Orchestrator {
	o := session.New(a.sessions)
	if userID == "" {
		return o
	}
	id, err := a.sessions.Identity.Lookup(ctx.Request.Context(), userID)
	if err != nil {
		a.logger.Warn("session identity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return o
	}
	_, _ = o.Resume(ctx.Request.Context(), id)
	return o
}

// Anonymous starts a guest session.
func (a *AuthController) Anonymous(ctx *gin.Context) {
	ip := ctx.ClientIP()
	if !a.guard.Allow(ctx.Request.Context(), ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many new sessions, please try again later")
		return
	}
	out, err := a.orchestrator(ctx, "").SignInAnonymously(ctx.Request.Context())
	if err != nil {
		a.identityError(ctx, err)
		return
	}
	a.guard.Record(ctx.Request.Context(), ip)
	a.issue(ctx, out)
}

// Register creates an email/password account, upgrading the current anonymous session if any.
func (a *AuthController) Register(ctx *gin.Context) {
	var req credentialRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	ip := ctx.ClientIP()
	if !a.guard.Allow(ctx.Request.Context(), ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many sign-ups, please try again later")
		return
	}
	o := a.orchestrator(ctx, middleware.UserID(ctx))
	out, err := o.CreateAccountWithPassword(ctx.Request.Context(), identity.PasswordCredential{Email: req.Email, Password: req.Password})
	if err != nil {
		a.identityError(ctx, err)
		return
	}
	a.guard.Record(ctx.Request.Context(), ip)
	a.issue(ctx, out)
}

// Login verifies email credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req credentialRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}
	o := a.orchestrator(ctx, middleware.UserID(ctx))
	out, err := o.SignInWithPassword(ctx.Request.Context(), identity.PasswordCredential{Email: req.Email, Password: req.Password})
	if err != nil {
		a.identityError(ctx, err)
		return
	}
	a.issue(ctx, out)
}

// OAuthRedirect generates a provider-specific authorization URL. The caller's
// current identity and push token ride along in the single-use state.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	ex, ok := a.providers.Exchanger(provider)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40004, "unsupported provider: "+provider)
		return
	}

	payload, _ := json.Marshal(oauthState{
		From:      middleware.UserID(ctx),
		PushToken: strings.TrimSpace(ctx.Query("push_token")),
	})
	state := uuid.NewString()
	if err := a.states.Save(ctx.Request.Context(), state, string(payload)); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "sign-in temporarily unavailable")
		return
	}
	utils.Success(ctx, gin.H{"authorization_url": ex.AuthCodeURL(state), "state": state})
}

// OAuthCallback exchanges the authorization code for an identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	var req struct {
		Code  string `json:"code" form:"code"`
		State string `json:"state" form:"state"`
		Error string `json:"error" form:"error"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40005, "invalid callback payload")
		return
	}
	if req.State == "" || (req.Code == "" && req.Error == "") {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	raw, ok := a.states.Consume(ctx.Request.Context(), req.State)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}
	var st oauthState
	_ = json.Unmarshal([]byte(raw), &st)

	o := a.orchestrator(ctx, st.From)
	out, err := o.SignInWithFederatedProvider(ctx.Request.Context(), identity.FederatedCredential{
		Provider: provider,
		Code:     req.Code,
		Error:    req.Error,
	}, st.PushToken)
	if err != nil {
		a.identityError(ctx, err)
		return
	}
	a.issue(ctx, out)
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token, expiresAt := middleware.Token(ctx)
	o := session.New(a.sessions)
	if err := o.SignOut(ctx.Request.Context(), token, expiresAt); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "failed to revoke token")
		return
	}
	utils.Success(ctx, gin.H{"message": "logged out", "session": o.State()})
}

// Me returns the current session state.
func (a *AuthController) Me(ctx *gin.Context) {
	o := a.orchestrator(ctx, middleware.UserID(ctx))
	st := o.State()
	if st.Status == session.StatusUnauthenticated {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	utils.Success(ctx, st)
}

// DeleteAccount removes the user's profile, journal, prayers and identity, then logs out.
func (a *AuthController) DeleteAccount(ctx *gin.Context) {
	o := a.orchestrator(ctx, middleware.UserID(ctx))
	token, expiresAt := middleware.Token(ctx)
	rep, err := o.DeleteAccount(ctx.Request.Context(), token, expiresAt)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
			return
		}
		a.logger.Warn("account deletion failed", zap.String("user_id", rep.UserID), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "failed to delete account, please retry")
		return
	}
	utils.Success(ctx, rep)
}

func (a *AuthController) issue(ctx *gin.Context, out session.Outcome) {
	id := out.State.Identity
	token, exp, err := a.issuer.Issue(id.ID, id.Anonymous)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	resp := gin.H{
		"token":           token,
		"expires_at":      exp.UTC().Format(time.RFC3339),
		"session":         out.State,
		"profile_created": out.ProfileCreated,
	}
	if out.Migration != nil {
		resp["migration"] = out.Migration
	}
	if out.MigrationWarning != nil {
		resp["migration_warning"] = "some of your guest progress could not be moved"
	}
	if out.Push.Registered || out.Push.Reason != "" {
		resp["push"] = out.Push
	}
	utils.Success(ctx, resp)
}

// identityError surfaces provider failures as user-facing messages.
func (a *AuthController) identityError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredential):
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
	case errors.Is(err, identity.ErrEmailInUse):
		utils.Error(ctx, http.StatusConflict, 40901, "email already in use")
	case errors.Is(err, identity.ErrWeakPassword):
		utils.Error(ctx, http.StatusBadRequest, 40002, "password must be at least 6 characters")
	case errors.Is(err, identity.ErrInvalidEmail):
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid email address")
	case errors.Is(err, identity.ErrFederatedCancelled):
		utils.Error(ctx, http.StatusBadRequest, 40007, "sign-in was cancelled")
	case errors.Is(err, identity.ErrProviderUnavailable):
		a.logger.Warn("identity provider unavailable", zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "sign-in provider unavailable, please try again")
	default:
		a.logger.Error("sign-in failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "sign-in failed")
	}
}
