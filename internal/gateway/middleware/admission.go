package middleware

import (
	"context"
	"time"

	"codeexec/internal/common/mq"
	pkgerrors "codeexec/pkg/errors"
	"codeexec/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMiddleware caps the number of requests executing at once. A request
// waits up to maxWait for a slot, then is rejected with ServiceBusy.
func AdmissionMiddleware(limiter *mq.TokenLimiter, maxWait time.Duration, inFlight prometheus.Gauge) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if maxWait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, maxWait)
			defer cancel()
		}
		if err := limiter.Acquire(ctx); err != nil {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.ServiceBusy).WithDetail("capacity", limiter.Capacity()))
			return
		}
		defer limiter.Release()
		if inFlight != nil {
			inFlight.Inc()
			defer inFlight.Dec()
		}
		c.Next()
	}
}
