package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novojourney/novo/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextAnonymousKey stores whether the session identity is anonymous.
	ContextAnonymousKey = "anonymous"
	// ContextTokenKey stores the raw bearer token, used for revocation on logout.
	ContextTokenKey = "token"
	// ContextTokenExpiryKey stores the token expiry as time.Time.
	ContextTokenExpiryKey = "token_expires_at"
)

// Authenticator validates bearer tokens.
type Authenticator struct {
	issuer  *utils.TokenIssuer
	revoked *utils.TokenBlacklist
}

func NewAuthenticator(issuer *utils.TokenIssuer, revoked *utils.TokenBlacklist) *Authenticator {
	return &Authenticator{issuer: issuer, revoked: revoked}
}

// Required ensures the request is authenticated via JWT.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}
		if code, msg := a.authenticate(ctx, authHeader); code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// Optional attaches the identity when a valid token is present and otherwise
// lets the request through unauthenticated. Sign-in endpoints use it to learn
// the anonymous identity being upgraded.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
			_, _ = a.authenticate(ctx, authHeader)
		}
		ctx.Next()
	}
}

func (a *Authenticator) authenticate(ctx *gin.Context, authHeader string) (int, string) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 40102, "invalid authorization header format"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return 40103, "empty bearer token"
	}

	if a.revoked.IsRevoked(ctx.Request.Context(), tokenString) {
		return 40104, "token revoked"
	}

	claims, err := a.issuer.Parse(tokenString)
	if err != nil {
		return 40105, "invalid token"
	}

	expiresAt := time.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextAnonymousKey, claims.Anonymous)
	ctx.Set(ContextTokenKey, tokenString)
	ctx.Set(ContextTokenExpiryKey, expiresAt)
	return 0, ""
}

// UserID returns the authenticated user id, or "" when the request is anonymous to the server.
func UserID(ctx *gin.Context) string {
	return ctx.GetString(ContextUserIDKey)
}

// Token returns the bearer token and its expiry when one was accepted.
func Token(ctx *gin.Context) (string, time.Time) {
	return ctx.GetString(ContextTokenKey), ctx.GetTime(ContextTokenExpiryKey)
}
