package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "flipper:presence:"

// PresenceMiddleware records the requesting user as online for chat presence display.
func PresenceMiddleware(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, ok := c.Get("userID")
		if !ok {
			c.Next()
			return
		}
		userID, ok := userIDVal.(string)
		if !ok || userID == "" {
			c.Next()
			return
		}

		if ttl <= 0 {
			ttl = 10 * time.Minute
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		_ = rdb.Set(ctx, presenceKeyPrefix+userID, time.Now().UTC().Format(time.RFC3339), ttl).Err()

		c.Next()
	}
}
