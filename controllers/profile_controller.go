package controllers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novojourney/novo/middleware"
	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

const maxNicknameLen = 40

// ProfileController exposes the signed-in user's own profile.
type ProfileController struct {
	profiles *store.FallbackProfiles
	rows     *store.ProfileStore
	journal  *store.JournalStore
	push     *push.Registrar
	logger   *zap.Logger
}

// NewProfileController creates a ProfileController.
func NewProfileController(profiles *store.FallbackProfiles, rows *store.ProfileStore, journal *store.JournalStore, registrar *push.Registrar, logger *zap.Logger) *ProfileController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileController{profiles: profiles, rows: rows, journal: journal, push: registrar, logger: logger}
}

// Get returns the profile plus a journal entry count.
func (p *ProfileController) Get(ctx *gin.Context) {
	uid := middleware.UserID(ctx)
	view, err := p.profiles.Get(ctx.Request.Context(), uid)
	if err != nil {
		profileError(ctx, err)
		return
	}

	entries, err := p.journal.CountByUser(ctx.Request.Context(), uid)
	if err != nil {
		p.logger.Warn("journal count failed", zap.String("user_id", uid), zap.Error(err))
	}
	utils.Success(ctx, gin.H{
		"profile":      view.Profile,
		"degraded":     view.Degraded,
		"journalCount": entries,
	})
}

// UpdateNickname changes the display nickname. The handle never changes.
func (p *ProfileController) UpdateNickname(ctx *gin.Context) {
	var req struct {
		Nickname string `json:"nickname" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "nickname is required")
		return
	}
	nickname := strings.TrimSpace(utils.SanitizeText(req.Nickname))
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLen {
		utils.BadRequest(ctx, "nickname must be 1-40 characters")
		return
	}

	uid := middleware.UserID(ctx)
	if err := p.rows.UpdateNickname(ctx.Request.Context(), uid, nickname); err != nil {
		profileError(ctx, err)
		return
	}
	view, err := p.profiles.Get(ctx.Request.Context(), uid)
	if err != nil {
		profileError(ctx, err)
		return
	}
	utils.Success(ctx, view.Profile)
}

// RegisterPushToken stores the device's push token. It answers 200 even when
// storing failed; the result says what happened.
func (p *ProfileController) RegisterPushToken(ctx *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	_ = ctx.ShouldBindJSON(&req)
	res := p.push.Register(ctx.Request.Context(), middleware.UserID(ctx), req.Token)
	utils.Success(ctx, res)
}

func profileError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "profile not found")
	case errors.Is(err, store.ErrUnavailable):
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "profile temporarily unavailable")
	default:
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "failed to load profile")
	}
}
