package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Asmamaw-kas/MYBOT/internal/testutil"
)

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	h := Health(mux)

	// Registering twice returns the same handler.
	testutil.AssertEqual(t, Health(mux) == h, true)

	h.RegisterFunc("always ok", func() (string, bool) {
		return "fine", true
	})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusOK)
	resp := testutil.UnmarshalJSON[HealthResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp, HealthResponse{
		OK: true,
		Checks: map[string]CheckResponse{
			"always ok": {Status: "fine", OK: true},
		},
	})
}

func TestHealthFailingCheck(t *testing.T) {
	mux := http.NewServeMux()
	h := Health(mux)

	h.RegisterFunc("broken", func() (string, bool) {
		return "on fire", false
	})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusInternalServerError)
	resp := testutil.UnmarshalJSON[HealthResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.OK, false)
}

func TestHealthDuplicateCheckPanics(t *testing.T) {
	mux := http.NewServeMux()
	h := Health(mux)
	h.RegisterFunc("dup", func() (string, bool) { return "", true })

	defer func() {
		if recover() == nil {
			t.Error("want panic on duplicate health check registration")
		}
	}()
	h.RegisterFunc("dup", func() (string, bool) { return "", true })
}
