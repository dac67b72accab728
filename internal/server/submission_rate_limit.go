package server

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agentdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	"go.uber.org/zap"
)

const submissionEndpoint = "service_request.create"

// SubmissionRateLimit throttles request submissions per agent when Redis is configured.
func (s *Server) SubmissionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		actorID, ok := actorIDFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.limiter.AllowSubmission(ctx, actorID)
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("submission rate limit exceeded", zap.String("endpoint", submissionEndpoint))
			recordRateLimitDenied(ctx, submissionEndpoint, "owner-rate", s.obsMetrics)

			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		recordRateLimitAllowed(ctx, submissionEndpoint, s.obsMetrics)
		c.Next()
	}
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}
