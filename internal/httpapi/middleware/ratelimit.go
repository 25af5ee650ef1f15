package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/nutrichat/nutrichat/internal/common"
)

// ChatRateLimit throttles message sends per authenticated user. Limiters
// live in an expiring cache so idle users are forgotten.
func ChatRateLimit(perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	limiters := cache.New(30*time.Minute, 5*time.Minute)

	return func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			// AuthRequired runs first; nothing to limit otherwise
			c.Next()
			return
		}

		key := strconv.FormatUint(uid, 10)
		var lim *rate.Limiter
		if v, found := limiters.Get(key); found {
			lim = v.(*rate.Limiter)
		} else {
			lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
			limiters.SetDefault(key, lim)
		}

		if !lim.Allow() {
			common.Fail(c, http.StatusTooManyRequests, common.CodeChatRateLimited, "too many messages, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
