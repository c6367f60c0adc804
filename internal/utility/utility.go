package utility

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	IPRateLimiter = sync.Map{}
)

// GetRealIP is a helper function to get the user's real IP address.
// It checks proxy headers first.
func GetRealIP(c echo.Context) string {
	// X-Forwarded-For can be a list: "client, proxy1, proxy2"
	xForwardedFor := c.Request().Header.Get("X-Forwarded-For")
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	xRealIP := c.Request().Header.Get("X-Real-IP")
	if xRealIP != "" {
		return xRealIP
	}

	return c.RealIP()
}

// CheckIPRateLimit enforces a sliding-window request budget per client IP.
func CheckIPRateLimit(ip string) error {
	now := time.Now()
	window := 1 * time.Minute
	maxAttempts := 30

	val, _ := IPRateLimiter.LoadOrStore(ip, []time.Time{})
	attempts := val.([]time.Time)

	// Remove old attempts
	var recent []time.Time
	for _, t := range attempts {
		if now.Sub(t) < window {
			recent = append(recent, t)
		}
	}

	if len(recent) >= maxAttempts {
		return fmt.Errorf("too many attempts, please try again later")
	}

	recent = append(recent, now)
	IPRateLimiter.Store(ip, recent)
	return nil
}

// GetUserIDFromContext safely retrieves user ID from Echo context
func GetUserIDFromContext(c echo.Context) (string, error) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
