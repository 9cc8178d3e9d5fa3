package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	mw := NewCORSMiddleware("http://bot.example.com")
	handler := mw(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://bot.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCORSMiddleware_PreflightReturns204(t *testing.T) {
	mw := NewCORSMiddleware("http://bot.example.com")
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/stats", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("プリフライトのstatus = %d, want 204", rec.Code)
	}
	if called {
		t.Error("プリフライトは後続ハンドラーに到達してはならない")
	}
}
