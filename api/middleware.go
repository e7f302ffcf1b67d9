package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// RequestLogger emits one entry per request and makes sure every response
// carries a request id.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			entry := logger.WithFields(log.Fields{
				"request_id": id,
				"method":     req.Method,
				"route":      c.Path(),
				"status":     status,
				"latency_ms": durationToMillis(time.Since(start)),
			})
			switch {
			case status >= 500:
				entry.Error("http.request")
			case status >= 400:
				entry.Warn("http.request")
			default:
				entry.Debug("http.request")
			}
			return nil
		}
	}
}
