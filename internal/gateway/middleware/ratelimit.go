package middleware

import (
	"math"
	"strconv"
	"time"

	"codeexec/internal/gateway/service"
	pkgerrors "codeexec/pkg/errors"
	"codeexec/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const rateKeyPrefix = "codeexec:rate"

// RateLimitPolicy caps hits per window for each client address and for the
// route as a whole. A zero max disables that check.
type RateLimitPolicy struct {
	Window   time.Duration
	IPMax    int
	RouteMax int
}

// RateLimitMiddleware rejects with 429 and a Retry-After header once a limit
// in policy is exhausted.
func RateLimitMiddleware(rateService *service.RateLimitService, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rateService == nil {
			c.Next()
			return
		}
		checks := []struct {
			key string
			max int
		}{
			{rateKeyPrefix + ":ip:" + c.ClientIP() + ":" + routeKey, policy.IPMax},
			{rateKeyPrefix + ":route:" + routeKey, policy.RouteMax},
		}
		for _, check := range checks {
			if err := rateService.Allow(c.Request.Context(), check.key, check.max, policy.Window); err != nil {
				setRetryAfter(c, err)
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}

func setRetryAfter(c *gin.Context, err error) {
	coded, ok := pkgerrors.As(err)
	if !ok {
		return
	}
	if wait, ok := coded.Details[service.DetailRetryAfter].(time.Duration); ok && wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
}
