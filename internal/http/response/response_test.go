package response

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func TestJSONCarriesDataAndRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/sessions", nil)
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "req-7"))
	rr := httptest.NewRecorder()

	JSON(rr, req, http.StatusOK, map[string]string{"next": "/a?b=1&c=<2>"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("success body must omit error, got %s", rr.Body.String())
	}
	if string(body["request_id"]) != `"req-7"` {
		t.Fatalf("expected request id from context, got %s", body["request_id"])
	}
	if string(body["data"]) != `{"next":"/a?b=1&c=<2>"}` {
		t.Fatalf("links must not be html-escaped, got %s", body["data"])
	}
}

func TestErrorCarriesProblem(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("X-Request-Id", "from-header")
	rr := httptest.NewRecorder()

	Error(rr, req, http.StatusTooManyRequests, CodeRateLimited, "too many requests", map[string]int{"retry_after_seconds": 30})

	var body Body
	var problem struct {
		Error struct {
			Code    Code           `json:"code"`
			Details map[string]int `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if rr.Code != http.StatusTooManyRequests || body.Data != nil || body.RequestID != "from-header" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if problem.Error.Code != CodeRateLimited || problem.Error.Details["retry_after_seconds"] != 30 {
		t.Fatalf("unexpected problem %+v", problem.Error)
	}
}
