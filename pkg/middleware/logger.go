package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Logger emits one structured line per request once the handler returns.
// Request and user ids come from the Context middleware, which runs first.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := req.Context()
			logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"user_id":       context.GetUserID(ctx),
				"trace_id":      tracing.GetTraceID(ctx),
				"method":        req.Method,
				"route":         c.Path(),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start),
				"response_size": res.Size,
			}).Info("Request")

			return nil
		}
	}
}
