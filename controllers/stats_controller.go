package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

// StatsController provides community statistics such as counts of journeys and prayers.
type StatsController struct {
	profiles  *store.ProfileStore
	journal   *store.JournalStore
	prayers   *store.PrayerStore
	donations *store.DonationStore
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(profiles *store.ProfileStore, journal *store.JournalStore, prayers *store.PrayerStore, donations *store.DonationStore) *StatsController {
	return &StatsController{profiles: profiles, journal: journal, prayers: prayers, donations: donations}
}

// GetStats returns aggregate statistics for the community.
func (s *StatsController) GetStats(ctx *gin.Context) {
	rc := ctx.Request.Context()

	profileCount, err := s.profiles.Count(rc)
	if err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		profileCount = 0
	}

	reflectionCount, err := s.journal.Count(rc)
	if err != nil {
		reflectionCount = 0
	}

	requestCount, prayerCount, err := s.prayers.Totals(rc)
	if err != nil {
		requestCount, prayerCount = 0, 0
	}

	donationCount, _, err := s.donations.Totals(rc, store.DonationPaid)
	if err != nil {
		donationCount = 0
	}

	utils.Success(ctx, gin.H{
		"journey_count":    profileCount,
		"reflection_count": reflectionCount,
		"request_count":    requestCount,
		"prayer_count":     prayerCount,
		"donation_count":   donationCount,
	})
}
