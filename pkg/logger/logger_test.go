package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Level("local", ""))
	assert.Equal(t, slog.LevelInfo, Level("production", ""))
	assert.Equal(t, slog.LevelWarn, Level("local", "warn"))
	assert.Equal(t, slog.LevelError, Level("production", "ERROR"))
	assert.Equal(t, slog.LevelInfo, Level("staging", "loud"))
}

func TestFromFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), From(context.Background()))
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, l, From(With(context.Background(), l)))
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(slog.Default()))
	var got *slog.Logger
	r.GET("/x", func(c *gin.Context) {
		got = FromGin(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.NotNil(t, got)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
}

func TestMiddlewareSummaryCarriesIdentityAndParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/bills/:subscriber", func(c *gin.Context) {
		c.Set("subject", "99988526423")
		c.Set("role", "subscriber")
		Annotate(c, "reference", "08/2018")
		assert.Same(t, FromGin(c), From(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/bills/99988526423", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "rid-1", line["request_id"])
	assert.Equal(t, "/bills/:subscriber", line["route"])
	assert.Equal(t, "99988526423", line["subscriber"])
	assert.Equal(t, "99988526423", line["subject"])
	assert.Equal(t, "subscriber", line["role"])
	assert.Equal(t, "08/2018", line["reference"])
	assert.Equal(t, float64(http.StatusOK), line["status"])
}
