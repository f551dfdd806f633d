package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/utils"
)

// PromotionController serves active promotions and the admin promotion endpoints.
type PromotionController struct {
	promos *services.PromotionService
}

// NewPromotionController creates a PromotionController.
func NewPromotionController(promos *services.PromotionService) *PromotionController {
	return &PromotionController{promos: promos}
}

// Active lists the promotions running now.
func (p *PromotionController) Active(ctx *gin.Context) {
	var cached []models.Promotion
	if utils.CacheGetJSON(utils.CacheKeyActivePromo, &cached) {
		utils.Success(ctx, cached)
		return
	}
	promos, err := p.promos.Active(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50340, "failed to load promotions")
		return
	}
	if promos == nil {
		promos = []models.Promotion{}
	}
	utils.CacheSetJSON(utils.CacheKeyActivePromo, promos, 30*time.Second)
	utils.Success(ctx, promos)
}

// List pages through every promotion (admin).
func (p *PromotionController) List(ctx *gin.Context) {
	page := pageFromQuery(ctx)
	items, total, err := p.promos.List(ctx.Request.Context(), page)
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50341, "failed to load promotions")
		return
	}
	utils.Success(ctx, paginated(items, total, page))
}

// Create adds a promotion (admin).
func (p *PromotionController) Create(ctx *gin.Context) {
	var req struct {
		Name        string          `json:"name" binding:"required"`
		Description string          `json:"description"`
		Multiplier  decimal.Decimal `json:"multiplier"`
		StartDate   time.Time       `json:"start_date"`
		EndDate     time.Time       `json:"end_date"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)

	promo, err := p.promos.Create(ctx.Request.Context(), services.PromotionInput{
		Name:        utils.SanitizeText(req.Name),
		Description: utils.Sanitize(req.Description),
		Multiplier:  req.Multiplier,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedBy:   userID,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			utils.Error(ctx, http.StatusBadRequest, 40041, err.Error())
			return
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50342, "failed to create promotion")
		return
	}
	utils.CacheDelete(utils.CacheKeyActivePromo, utils.CacheKeyStats)
	utils.Created(ctx, promo)
}

// End stops a promotion immediately (admin).
func (p *PromotionController) End(ctx *gin.Context) {
	promo, err := p.promos.End(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrPromotionNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "promotion not found")
			return
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50343, "failed to end promotion")
		return
	}
	utils.CacheDelete(utils.CacheKeyActivePromo, utils.CacheKeyStats)
	utils.Success(ctx, promo)
}
