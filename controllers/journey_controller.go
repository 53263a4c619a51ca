package controllers

import (
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novojourney/novo/journey"
	"github.com/novojourney/novo/middleware"
	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

// JourneyController serves the daily card, day completion and the journal.
type JourneyController struct {
	svc      *journey.Service
	profiles *store.FallbackProfiles
	journal  *store.JournalStore
	logger   *zap.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewJourneyController creates a JourneyController.
func NewJourneyController(svc *journey.Service, profiles *store.FallbackProfiles, journal *store.JournalStore, logger *zap.Logger) *JourneyController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JourneyController{
		svc:      svc,
		profiles: profiles,
		journal:  journal,
		logger:   logger,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Today returns the card for the user's current day.
func (j *JourneyController) Today(ctx *gin.Context) {
	view, err := j.profiles.Get(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		profileError(ctx, err)
		return
	}
	today := j.svc.Catalog().Today(view.Profile.CurrentDay)
	utils.Success(ctx, gin.H{
		"today":         today,
		"completedDays": view.Profile.CompletedDays,
		"badges":        view.Profile.Badges,
		"degraded":      view.Degraded,
	})
}

// Weeks lists the whole programme.
func (j *JourneyController) Weeks(ctx *gin.Context) {
	utils.Success(ctx, j.svc.Catalog().Weeks())
}

// Complete records a reflection for a day and advances progress.
func (j *JourneyController) Complete(ctx *gin.Context) {
	var req struct {
		Day        int    `json:"day" binding:"required"`
		Reflection string `json:"reflection"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "day is required")
		return
	}

	out, err := j.svc.RecordDayCompletion(ctx.Request.Context(), middleware.UserID(ctx), req.Day, req.Reflection)
	switch {
	case errors.Is(err, journey.ErrEmptyReflection):
		utils.Error(ctx, http.StatusBadRequest, 40010, "Please write your reflection before completing the day.")
		return
	case errors.Is(err, journey.ErrInvalidDay):
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid day")
		return
	case errors.Is(err, store.ErrUnavailable):
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "could not save your reflection, please try again")
		return
	case err != nil:
		j.logger.Error("record day completion failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "could not save your reflection")
		return
	}

	resp := gin.H{"entry": out.Entry}
	if out.Profile != nil {
		resp["profile"] = out.Profile
		resp["today"] = j.svc.Catalog().Today(out.Profile.CurrentDay)
	}
	if out.BadgeAwarded != "" {
		resp["badgeAwarded"] = out.BadgeAwarded
	}
	if out.ProgressErr != nil {
		resp["progressWarning"] = "your reflection was saved but progress could not be updated"
	}
	utils.Created(ctx, resp)
}

// Journal lists the user's reflections, newest first.
func (j *JourneyController) Journal(ctx *gin.Context) {
	entries, err := j.journal.ListByUser(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "journal temporarily unavailable")
		return
	}
	utils.Success(ctx, entries)
}

// Rescue returns the urge-rescue panel with a random scripture and prayer.
func (j *JourneyController) Rescue(ctx *gin.Context) {
	j.rndMu.Lock()
	panel := j.svc.Catalog().RescuePanel(j.rnd)
	j.rndMu.Unlock()
	utils.Success(ctx, panel)
}
