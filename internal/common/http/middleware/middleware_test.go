package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeexec/pkg/utils/contextkey"
	"codeexec/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(seen *[2]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware(), RequestLogger())
	r.GET("/ping", func(c *gin.Context) {
		ctx := c.Request.Context()
		seen[0], _ = ctx.Value(contextkey.TraceID).(string)
		seen[1], _ = ctx.Value(contextkey.RequestID).(string)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestTraceContextGeneratesIDs(t *testing.T) {
	var seen [2]string
	rec := httptest.NewRecorder()
	newRouter(&seen).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if seen[0] == "" || seen[1] == "" {
		t.Fatalf("ids missing from context: %v", seen)
	}
	if rec.Header().Get(TraceIDHeader) != seen[0] || rec.Header().Get(RequestIDHeader) != seen[1] {
		t.Fatalf("response headers do not match context ids")
	}
}

func TestTraceContextKeepsIncomingIDs(t *testing.T) {
	var seen [2]string
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, " trace-1 ")
	req.Header.Set(RequestIDHeader, strings.Repeat("r", maxIDLength+1))
	rec := httptest.NewRecorder()
	newRouter(&seen).ServeHTTP(rec, req)

	if seen[0] != "trace-1" {
		t.Fatalf("trace id = %q, want trace-1", seen[0])
	}
	if len(seen[1]) > maxIDLength || seen[1] == "" {
		t.Fatalf("oversized request id should be replaced, got %q", seen[1])
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.SetGlobal(logger.New(zap.New(core)))
	defer logger.SetGlobal(prev)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware(), RequestLogger("/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/execute", func(c *gin.Context) {
		c.Header(errorCodeHeader, "13005")
		c.Status(http.StatusServiceUnavailable)
	})
	r.GET("/api/v1/languages", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/metrics", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/execute", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 access lines, got %d", len(entries))
	}
	failed := entries[0]
	if failed.Level != zapcore.ErrorLevel || failed.ContextMap()["error_code"] != "13005" || failed.ContextMap()["route"] != "/api/v1/execute" {
		t.Fatalf("unexpected failure entry: %+v", failed.ContextMap())
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("success should log at info, got %s", entries[1].Level)
	}
	if entries[2].Level != zapcore.WarnLevel || entries[2].ContextMap()["route"] != "unmatched" {
		t.Fatalf("unexpected 404 entry: %+v", entries[2].ContextMap())
	}
	if entries[1].ContextMap()["trace_id"] == nil {
		t.Fatalf("trace id should be attached")
	}
}
