package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeexec/internal/common/cache"
	"codeexec/internal/common/mq"
	"codeexec/internal/gateway/service"
	"codeexec/pkg/utils/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	rateService := service.NewRateLimitService(c, time.Minute, time.Second, false)

	r := gin.New()
	r.POST("/run", RateLimitMiddleware(rateService, "execute", RateLimitPolicy{IPMax: 2}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		if rec := serve(r, httptest.NewRequest(http.MethodPost, "/run", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	rec := serve(r, httptest.NewRequest(http.MethodPost, "/run", nil))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get(response.ErrorCodeHeader) != "10006" {
		t.Fatalf("expected 429, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}

	other := httptest.NewRequest(http.MethodPost, "/run", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	if rec := serve(r, other); rec.Code != http.StatusOK {
		t.Fatalf("other client should be admitted, got %d", rec.Code)
	}
}

func TestAdmissionMiddleware(t *testing.T) {
	limiter := mq.NewTokenLimiter(1)
	release := make(chan struct{})
	entered := make(chan struct{})

	r := gin.New()
	r.POST("/run", AdmissionMiddleware(limiter, 20*time.Millisecond, nil), func(c *gin.Context) {
		if c.Query("block") == "1" {
			close(entered)
			<-release
		}
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(r, httptest.NewRequest(http.MethodPost, "/run?block=1", nil))
	}()
	<-entered

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/run", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get(response.ErrorCodeHeader) != "13005" {
		t.Fatalf("expected 503 while saturated, got %d", rec.Code)
	}

	close(release)
	wg.Wait()
	if rec := serve(r, httptest.NewRequest(http.MethodPost, "/run", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected slot to be released, got %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://play.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		ExposedHeaders: []string{"X-Trace-Id"},
		MaxAge:         10 * time.Minute,
	}))
	r.POST("/run", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := httptest.NewRequest(http.MethodOptions, "/run", nil)
	preflight.Header.Set("Origin", "https://play.example.com")
	rec := serve(r, preflight)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://play.example.com" || rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected preflight headers: %v", rec.Header())
	}

	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Error-Code, X-Trace-Id, X-Request-Id, Retry-After" {
		t.Fatalf("unexpected exposed headers %q", got)
	}

	plain := httptest.NewRequest(http.MethodPost, "/run", nil)
	plain.Header.Set("Origin", "https://PLAY.example.com")
	if rec := serve(r, plain); rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") != "" || rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("unexpected simple response: %d %v", rec.Code, rec.Header())
	}

	denied := httptest.NewRequest(http.MethodOptions, "/run", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	if rec := serve(r, denied); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}
}
