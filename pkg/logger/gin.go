package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"

	ginLoggerKey = "logger"
	ginAttrsKey  = "log_attrs"
)

// Middleware tags every request with a request id and writes one summary
// line per request once the handler chain is done.
//
// The summary carries the route's path params (e.g. subscriber), the
// caller identity the auth middleware stored under "subject" and "role",
// and anything handlers added with Annotate.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
		}
		for _, p := range c.Params {
			attrs = append(attrs, p.Key, p.Value)
		}
		if sub := c.GetString("subject"); sub != "" {
			attrs = append(attrs, "subject", sub, "role", c.GetString("role"))
		}
		if extra, ok := c.Get(ginAttrsKey); ok {
			attrs = append(attrs, extra.([]any)...)
		}

		switch {
		case len(c.Errors) > 0:
			reqLogger.Error("request", append(attrs, "errors", c.Errors.String())...)
		case c.Writer.Status() >= 500:
			reqLogger.Error("request", attrs...)
		default:
			reqLogger.Info("request", attrs...)
		}
	}
}

// Annotate adds key/value pairs to the request's summary line.
func Annotate(c *gin.Context, args ...any) {
	var attrs []any
	if v, ok := c.Get(ginAttrsKey); ok {
		attrs = v.([]any)
	}
	c.Set(ginAttrsKey, append(attrs, args...))
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
