package response

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeexec/pkg/errors"
	"codeexec/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	return c, rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Error
}

func TestError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{err: errors.UnsupportedLanguage("cobol"), status: http.StatusBadRequest, code: "13003", msg: "Unsupported language"},
		{err: errors.New(errors.ServiceBusy), status: http.StatusServiceUnavailable, code: "13005"},
		{err: errors.New(errors.TooManyRequests), status: http.StatusTooManyRequests, code: "10006"},
		{err: context.DeadlineExceeded, status: http.StatusInternalServerError, code: "10001"},
	}
	for _, tc := range cases {
		c, rec := newContext()
		Error(c, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		if got := rec.Header().Get(ErrorCodeHeader); got != tc.code {
			t.Fatalf("%v: code header = %s, want %s", tc.err, got, tc.code)
		}
		if msg := decodeError(t, rec); msg == "" || (tc.msg != "" && msg != tc.msg) {
			t.Fatalf("%v: unexpected message %q", tc.err, msg)
		}
	}
}

func TestBadRequestAndSuccess(t *testing.T) {
	c, rec := newContext()
	BadRequest(c, "invalid JSON body")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "invalid JSON body" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	c, rec = newContext()
	Success(c, map[string]string{"output": "hi"})
	if rec.Code != http.StatusOK || rec.Body.String() != `{"output":"hi"}` {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(ErrorCodeHeader) != "" {
		t.Fatalf("success must not carry an error code")
	}
}

func TestTraceID(t *testing.T) {
	c, _ := newContext()
	if TraceID(c) != "" {
		t.Fatalf("expected empty trace id")
	}
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.TraceID, "t-1"))
	if TraceID(c) != "t-1" {
		t.Fatalf("trace id not read from context")
	}
}
