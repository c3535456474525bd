package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// WriteRateLimit limits write operations per caller principal using Redis if
// available. Limiting is fail-open: a cache outage must not take the ledger's
// write path down with it.
func WriteRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		caller := CallerPrincipal(c)
		if caller == "" {
			caller = c.IP()
		}
		key := "rl:write:" + caller
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "write rate exceeded, try again later")
		}
		return c.Next()
	}
}
