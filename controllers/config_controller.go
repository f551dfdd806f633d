package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/config"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/utils"
)

// ConfigController serves the public reward rules clients render.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetRules returns the cooldown, base amount, referral bonus and streak tiers.
func (c *ConfigController) GetRules(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"cooldown_seconds": int64(cfg.ClaimCooldown.Seconds()),
		"base_amount":      cfg.BaseAmount(),
		"referral_bonus":   cfg.ReferralBonusAmount(),
		"streak_tiers":     services.StreakTiers(),
	})
}
