package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(a *Authenticator) *gin.Engine {
	r := gin.New()
	r.GET("/private", a.Required(), func(ctx *gin.Context) {
		token, exp := Token(ctx)
		ctx.JSON(http.StatusOK, gin.H{"user": UserID(ctx), "token": token != "", "exp": !exp.IsZero()})
	})
	r.GET("/maybe", a.Optional(), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"user": UserID(ctx)})
	})
	return r
}

func get(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequiredAuth(t *testing.T) {
	issuer := utils.NewTokenIssuer("secret", time.Hour)
	revoked := utils.NewTokenBlacklist(nil)
	r := newAuthRouter(NewAuthenticator(issuer, revoked))

	tok, exp, err := issuer.Issue("user-1", true)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		code   int
	}{
		"missing":    {"", http.StatusUnauthorized},
		"not bearer": {"Basic abc", http.StatusUnauthorized},
		"empty":      {"Bearer  ", http.StatusUnauthorized},
		"garbage":    {"Bearer nope", http.StatusUnauthorized},
		"valid":      {"Bearer " + tok, http.StatusOK},
	}
	for name, tc := range cases {
		w := get(r, "/private", tc.header)
		assert.Equal(t, tc.code, w.Code, name)
	}
	assert.Contains(t, get(r, "/private", "Bearer "+tok).Body.String(), `"user":"user-1"`)

	require.NoError(t, revoked.Revoke(context.Background(), tok, exp))
	w := get(r, "/private", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40104")
}

func TestOptionalAuthNeverBlocks(t *testing.T) {
	issuer := utils.NewTokenIssuer("secret", time.Hour)
	r := newAuthRouter(NewAuthenticator(issuer, utils.NewTokenBlacklist(nil)))
	tok, _, err := issuer.Issue("user-2", false)
	require.NoError(t, err)

	w := get(r, "/maybe", "Bearer nope")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":""`)

	w = get(r, "/maybe", "Bearer "+tok)
	assert.Contains(t, w.Body.String(), `"user":"user-2"`)
}

func TestRateLimiterPerIP(t *testing.T) {
	l := NewRateLimiter(4)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))

	r := gin.New()
	r.GET("/", NewRateLimiter(2).Middleware(), func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusNoContent, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)
}
