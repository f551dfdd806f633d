package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/middleware"
	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// pageFromQuery reads page, page_size and q from the query string.
func pageFromQuery(ctx *gin.Context) store.Page {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	return store.Page{Page: page, PageSize: size, Search: ctx.Query("q")}
}

func paginated(items interface{}, total int64, page store.Page) gin.H {
	return gin.H{
		"items": items,
		"pagination": gin.H{
			"page":        page.Page,
			"page_size":   page.PageSize,
			"total":       total,
			"total_pages": int((total + int64(page.PageSize) - 1) / int64(page.PageSize)),
		},
	}
}

func getUserID(ctx *gin.Context) (string, bool) {
	id := ctx.GetString(middleware.ContextUserIDKey)
	return id, id != ""
}

// userResponse is the account view returned to its owner and to admins.
func userResponse(user models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"total_claims":  user.TotalClaims,
		"streak":        user.Streak,
		"last_claim":    user.LastClaim,
		"balance":       user.Balance,
		"is_admin":      user.IsAdmin,
		"is_banned":     user.IsBanned,
		"referral_code": user.ReferralCode,
		"created_at":    user.CreatedAt,
	}
}
