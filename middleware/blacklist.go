package middleware

import (
	"html"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// BlacklistFilter rejects requests whose client IP is on the admin blacklist.
// Lookup errors let the request through; the claim path checks again.
func BlacklistFilter(admin store.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ClientIP(c)
		if ip == "" {
			c.Next()
			return
		}
		blocked, err := admin.IsBlacklisted(c.Request.Context(), models.BlacklistKindIP, ip)
		if err != nil {
			utils.Logger.Warn("blacklist lookup failed", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if blocked {
			respondBlocked(c, ip)
			return
		}
		c.Next()
	}
}

// ClientIP extracts the real visitor IP considering common proxy headers.
// Priority: CF-Connecting-IP > X-Real-IP > first of X-Forwarded-For > gin.ClientIP
func ClientIP(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); v != "" {
		v = stripPort(v)
		if isValidPublicIP(v) {
			return v
		}
	}
	if v := strings.TrimSpace(c.GetHeader("X-Real-IP")); v != "" {
		v = stripPort(v)
		if isValidPublicIP(v) {
			return v
		}
	}
	if v := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); v != "" {
		cand := stripPort(strings.TrimSpace(strings.Split(v, ",")[0]))
		if isValidPublicIP(cand) {
			return cand
		}
	}
	return stripPort(c.ClientIP())
}

func stripPort(ip string) string {
	if h, _, err := net.SplitHostPort(ip); err == nil {
		return h
	}
	return ip
}

func isValidPublicIP(ip string) bool {
	p := net.ParseIP(ip)
	if p == nil {
		return false
	}
	return !p.IsLoopback() && !p.IsPrivate()
}

// respondBlocked writes an HTML page for browser requests, otherwise JSON.
func respondBlocked(c *gin.Context, ip string) {
	msg := "access from " + ip + " is blocked"
	isAPI := strings.HasPrefix(c.Request.URL.Path, "/api/")
	wantsHTML := strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")

	if !isAPI && wantsHTML {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusForbidden)
		page := "<!doctype html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>Access blocked</title>" +
			"<style>body{font-family:-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;background:#f7f7f9}" +
			".card{max-width:560px;margin:12vh auto;background:#fff;border-radius:12px;padding:24px;box-shadow:0 2px 12px rgba(0,0,0,.08)}" +
			"</style></head><body><div class=\"card\"><h1>Access blocked</h1><p>" + html.EscapeString(msg) +
			"</p><p>Contact the site administrator if you think this is a mistake.</p></div></body></html>"
		_, _ = c.Writer.Write([]byte(page))
		c.Abort()
		return
	}
	utils.Respond(c, http.StatusForbidden, 40301, msg, gin.H{"ip": ip})
	c.Abort()
}
