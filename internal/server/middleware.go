package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
)

// unmatchedRoute labels requests that hit no route, keeping the path
// label bounded.
const unmatchedRoute = "unmatched"

// httpMetrics records request count and latency per route template.
func httpMetrics(metrics *instrumentation.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = unmatchedRoute
			}
			metrics.RecordHTTPRequest(c.Request().Context(), c.Request().Method, path, responseStatus(c, err), time.Since(start))
			return err
		}
	}
}

// responseStatus is the status the client will see. Handler errors are
// written after middleware returns, so they are resolved here.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int(logging.KeyStatus, v.Status),
				slog.Duration(logging.KeyDuration, v.Latency),
			}
			level := slog.LevelDebug
			if v.Error != nil {
				attrs = append(attrs, logging.Err(v.Error))
				level = slog.LevelWarn
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}

// errorResponse is the body of every API error.
type errorResponse struct {
	Error string `json:"error"`
}

// jsonErrorHandler renders handler errors as {"error": "..."}. Internal
// errors are logged and hidden from the client.
func jsonErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := http.StatusText(status)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error("request failed", slog.String("path", c.Path()), logging.Err(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, errorResponse{Error: message})
		}
		if err != nil {
			logger.Warn("failed to write error response", logging.Err(err))
		}
	}
}
