package echoutil

import (
	"time"

	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogHandler logs a line when a request begins and another when it ends.
//
// The request-scoped logger, carrying the request id, is put into the request context
// and can be taken by logging.FromContext.
//
// Errors from next are passed to echo's HTTPErrorHandler, and not returned.
func LogHandler(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			BEGIN := time.Now()

			l := logger.With(
				zap.String("request_id", requestID(c)),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			c.SetRequest(req.WithContext(logging.NewContext(req.Context(), l)))
			l.Debug("< request", zap.String("remote", c.RealIP()))

			err := next(c)
			if err != nil {
				// the error handler decides the status.
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.Int("status", status),
				zap.Duration("latency", time.Since(BEGIN)),
			}
			lv := zapcore.InfoLevel
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			if 500 <= status {
				lv = zapcore.ErrorLevel
			}
			l.Log(lv, "> response", fields...)
			return nil
		}
	}
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// SetLevel applies loglevel (debug|info|warn|error|off) to echo's own logger.
//
// Unknown levels fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	lv, ok := logging.ParseLevel(loglevel)
	switch lv {
	case zapcore.DebugLevel:
		e.Logger.SetLevel(log.DEBUG)
	case zapcore.InfoLevel:
		e.Logger.SetLevel(log.INFO)
	case zapcore.ErrorLevel:
		e.Logger.SetLevel(log.ERROR)
	case logging.Off:
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
	}
	if !ok {
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
