package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// WriteRateLimit bounds ledger mutations per owner per minute using Redis.
// Without Redis (or on cache errors) it fails open; the ledger's own reference
// dedup still protects against duplicate postings.
func WriteRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		owner := c.Params("ownerId")
		if owner == "" {
			owner = c.IP()
		}
		key := "wallet:rl:" + owner

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many wallet operations, try again later")
		}
		return c.Next()
	}
}
