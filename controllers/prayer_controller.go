package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/middleware"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

const (
	maxPrayerLen      = 1000
	streamHeartbeat   = 25 * time.Second
	anonymousHandle   = "Anonymous"
	defaultPrayerPage = 20
)

// PrayerController serves the community prayer wall.
type PrayerController struct {
	prayers   *store.PrayerStore
	profiles  *store.FallbackProfiles
	feed      *store.Feed
	publisher events.Publisher
	logger    *zap.Logger
}

// NewPrayerController creates a PrayerController.
func NewPrayerController(prayers *store.PrayerStore, profiles *store.FallbackProfiles, feed *store.Feed, publisher events.Publisher, logger *zap.Logger) *PrayerController {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrayerController{prayers: prayers, profiles: profiles, feed: feed, publisher: publisher, logger: logger}
}

// List returns prayer requests, newest first.
func (p *PrayerController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	list, err := p.prayers.List(ctx.Request.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "prayer wall temporarily unavailable")
		return
	}
	utils.Success(ctx, gin.H{
		"items":     list,
		"page":      page,
		"page_size": pageSize,
	})
}

// Create posts a request under the author's current handle.
func (p *PrayerController) Create(ctx *gin.Context) {
	var req struct {
		Request string `json:"request" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "request is required")
		return
	}
	text := utils.SanitizeText(req.Request)
	if text == "" {
		utils.BadRequest(ctx, "request is required")
		return
	}
	if utf8.RuneCountInString(text) > maxPrayerLen {
		utils.BadRequest(ctx, "request must be at most 1000 characters")
		return
	}

	uid := middleware.UserID(ctx)
	handle := anonymousHandle
	if view, err := p.profiles.Get(ctx.Request.Context(), uid); err == nil && view.Profile.Handle != "" {
		handle = view.Profile.Handle
	}

	r := &models.PrayerRequest{
		UserID:     uid,
		UserHandle: handle,
		Request:    text,
		CreatedAt:  time.Now(),
	}
	if err := p.prayers.Add(ctx.Request.Context(), r); err != nil {
		p.logger.Warn("prayer request save failed", zap.String("user_id", uid), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "could not post your request, please try again")
		return
	}
	if err := p.publisher.Publish(ctx.Request.Context(), events.New(events.TypePrayerCreated, uid, map[string]string{"id": r.ID})); err != nil {
		p.logger.Warn("publish prayer.created failed", zap.Error(err))
	}
	utils.Created(ctx, r)
}

// Pray increments the request's prayer counter.
func (p *PrayerController) Pray(ctx *gin.Context) {
	id := strings.TrimSpace(ctx.Param("id"))
	n, err := p.prayers.Increment(ctx.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "prayer request not found")
		return
	case err != nil:
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "could not record your prayer")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "prayerCount": n})
}

// Stream pushes prayer wall changes as server-sent events until the client goes away.
func (p *PrayerController) Stream(ctx *gin.Context) {
	sub := p.feed.Subscribe(store.TopicPrayers)
	if err := sub.Start(ctx.Request.Context()); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeUnavailable, "live updates unavailable")
		return
	}
	defer sub.Stop()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.SSEvent("ready", gin.H{"topic": store.TopicPrayers})
	ctx.Writer.Flush()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			ctx.SSEvent(ev.Kind, ev)
			return true
		case <-heartbeat.C:
			ctx.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := defaultPrayerPage
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}
