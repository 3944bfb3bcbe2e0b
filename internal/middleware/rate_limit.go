package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit creates a per-user rate limiter middleware instance. Anonymous
// callers are keyed by client IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			subject := rateLimitSubject(c.Locals("user_id"))
			if subject == "" {
				subject = "ip:" + c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, subject)
		},
	})
}

// rateLimitSubject returns the caller's user id, or "" when there is none.
func rateLimitSubject(value interface{}) string {
	switch id := value.(type) {
	case uint:
		if id > 0 {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
	case int:
		if id > 0 {
			return "user:" + strconv.Itoa(id)
		}
	case string:
		if trimmed := strings.TrimSpace(id); trimmed != "" && trimmed != "0" {
			return "user:" + trimmed
		}
	}
	return ""
}
