package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// LeaderboardSize is the number of users shown on the leaderboard.
const LeaderboardSize = 10

// StatsController provides site statistics, the leaderboard and per-user analytics.
type StatsController struct {
	store     store.Store
	analytics *services.AnalyticsService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(st store.Store, analytics *services.AnalyticsService) *StatsController {
	return &StatsController{store: st, analytics: analytics}
}

// GetStats returns aggregate statistics, cached for a minute.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var cached store.Stats
	if utils.CacheGetJSON(utils.CacheKeyStats, &cached) {
		utils.Success(ctx, cached)
		return
	}
	stats, err := s.store.Stats(ctx.Request.Context(), time.Now().UTC())
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50360, "failed to load stats")
		return
	}
	utils.CacheSetJSON(utils.CacheKeyStats, stats, time.Minute)
	utils.Success(ctx, stats)
}

// Leaderboard returns the top users by total claims.
func (s *StatsController) Leaderboard(ctx *gin.Context) {
	var cached []store.LeaderboardEntry
	if utils.CacheGetJSON(utils.CacheKeyLeaderboard, &cached) {
		utils.Success(ctx, cached)
		return
	}
	entries, err := RefreshLeaderboard(ctx.Request.Context(), s.store)
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50361, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, entries)
}

// MyAnalytics returns the caller's claim analytics over ?days= (default 30).
func (s *StatsController) MyAnalytics(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	days, _ := strconv.Atoi(ctx.Query("days"))
	out, err := s.analytics.ForUser(ctx.Request.Context(), userID, days)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50362, "failed to load analytics")
		return
	}
	utils.Success(ctx, out)
}

// Health reports whether the store answers.
func (s *StatsController) Health(ctx *gin.Context) {
	if err := s.store.Ping(ctx.Request.Context()); err != nil {
		utils.Respond(ctx, http.StatusServiceUnavailable, 50300, "store unreachable", gin.H{"status": "degraded"})
		return
	}
	utils.Success(ctx, gin.H{"status": "ok", "redis": utils.GetRedis() != nil})
}

// RefreshLeaderboard reads the leaderboard from the store and caches it. The
// scheduler calls it to keep the cache warm.
func RefreshLeaderboard(ctx context.Context, st store.AnalyticsStore) ([]store.LeaderboardEntry, error) {
	entries, err := st.Leaderboard(ctx, LeaderboardSize)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	utils.CacheSetJSON(utils.CacheKeyLeaderboard, entries, 10*time.Minute)
	return entries, nil
}
