package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Asmamaw-kas/MYBOT/internal/cli"
	"github.com/Asmamaw-kas/MYBOT/internal/telegram"
	"github.com/Asmamaw-kas/MYBOT/internal/testutil"
	"github.com/Asmamaw-kas/MYBOT/internal/web"
)

func testEnv(envs map[string]string) *cli.Env {
	return &cli.Env{
		Getenv: func(key string) string { return envs[key] },
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
}

// fakeTelegram mocks the handful of Bot API methods startup needs.
type fakeTelegram struct {
	mux *http.ServeMux

	mu          sync.Mutex
	webhooksSet []telegram.SetWebhookParams
}

func newFakeTelegram() *fakeTelegram {
	f := &fakeTelegram{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST api.telegram.org/{token}/getMe", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, map[string]any{
			"ok":     true,
			"result": telegram.User{ID: 1, IsBot: true, FirstName: "Test", Username: "testbot"},
		})
	})
	f.mux.HandleFunc("POST api.telegram.org/{token}/setWebhook", func(w http.ResponseWriter, r *http.Request) {
		var p telegram.SetWebhookParams
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.webhooksSet = append(f.webhooksSet, p)
		f.mu.Unlock()
		web.RespondJSON(w, map[string]any{"ok": true, "result": true})
	})
	return f
}

func validEnv() map[string]string {
	return map[string]string{
		"BOT_TOKEN":          "123456:TEST",
		"PRIVATE_CHANNEL_ID": "-1001234567890",
		"PUBLIC_CHANNEL":     "@mybooks",
		"WEBHOOK_SECRET":     "hunter2",
	}
}

func testEngine() (*engine, *fakeTelegram) {
	api := newFakeTelegram()
	e := &engine{
		httpc:         testutil.MockHTTPClient(api.mux),
		noServerStart: true,
	}
	return e, api
}

func TestRunReportsAllMissingEnvVars(t *testing.T) {
	e, _ := testEngine()

	err := e.Run(context.Background(), testEnv(nil))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("got %v, want cli.ErrInvalidArgs", err)
	}
	for _, name := range []string{"BOT_TOKEN", "PRIVATE_CHANNEL_ID", "PUBLIC_CHANNEL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q doesn't name %s", err, name)
		}
	}
}

func TestRunRequiresWebhookURLInProd(t *testing.T) {
	e, _ := testEngine()
	e.prod = true

	err := e.Run(context.Background(), testEnv(validEnv()))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("got %v, want cli.ErrInvalidArgs", err)
	}
	if !strings.Contains(err.Error(), "WEBHOOK_URL") {
		t.Errorf("error %q doesn't name WEBHOOK_URL", err)
	}
}

func TestRunRejectsMalformedChannelID(t *testing.T) {
	e, _ := testEngine()
	envs := validEnv()
	envs["PRIVATE_CHANNEL_ID"] = "@notanid"

	err := e.Run(context.Background(), testEnv(envs))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("got %v, want cli.ErrInvalidArgs", err)
	}
}

func TestRunSetsWebhookInProd(t *testing.T) {
	e, api := testEngine()
	e.prod = true
	envs := validEnv()
	envs["WEBHOOK_URL"] = "https://bot.example.com/webhook"

	if err := e.Run(context.Background(), testEnv(envs)); err != nil {
		t.Fatal(err)
	}

	if len(api.webhooksSet) != 1 {
		t.Fatalf("setWebhook called %d times, want 1", len(api.webhooksSet))
	}
	got := api.webhooksSet[0]
	testutil.AssertEqual(t, got.URL, "https://bot.example.com/webhook")
	testutil.AssertEqual(t, got.SecretToken, "hunter2")
}

func TestRenderEnvironmentImpliesProd(t *testing.T) {
	e, api := testEngine()
	envs := validEnv()
	envs["RENDER"] = "true"
	envs["PORT"] = "10000"
	envs["RENDER_EXTERNAL_URL"] = "https://mybot.onrender.com"

	if err := e.Run(context.Background(), testEnv(envs)); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, e.prod, true)
	testutil.AssertEqual(t, e.addr, ":10000")
	if len(api.webhooksSet) != 1 {
		t.Fatalf("setWebhook called %d times, want 1", len(api.webhooksSet))
	}
	testutil.AssertEqual(t, api.webhooksSet[0].URL, "https://mybot.onrender.com/webhook")
	testutil.AssertEqual(t, e.pingURL, "https://mybot.onrender.com/health")
}

func TestStatusPage(t *testing.T) {
	e, _ := testEngine()
	if err := e.Run(context.Background(), testEnv(validEnv())); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusOK)
	status := testutil.UnmarshalJSON[map[string]any](t, w.Body.Bytes())
	testutil.AssertEqual(t, status["status"], "ok")
	testutil.AssertEqual(t, status["bot"], "@testbot")

	// Anything besides / is a 404.
	r = httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusNotFound)
}

func TestWebhookRouteIsWired(t *testing.T) {
	e, _ := testEngine()
	if err := e.Run(context.Background(), testEnv(validEnv())); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":1}`))
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hunter2")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusOK)

	// Wrong secret looks like a missing page.
	r = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":2}`))
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusNotFound)
}

func TestDebugAuth(t *testing.T) {
	e, _ := testEngine()
	if err := e.Run(context.Background(), testEnv(validEnv())); err != nil {
		t.Fatal(err)
	}

	debugReq := func(query string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/debug/"+query, nil)
	}

	// Anything goes outside production.
	testutil.AssertEqual(t, e.debugAuth(debugReq("")), true)

	e.prod = true
	testutil.AssertEqual(t, e.debugAuth(debugReq("")), false)
	testutil.AssertEqual(t, e.debugAuth(debugReq("?debug-token=wrong")), false)
	testutil.AssertEqual(t, e.debugAuth(debugReq("?debug-token=hunter2")), true)
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := testEngine()
	if err := e.Run(context.Background(), testEnv(validEnv())); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	testutil.AssertEqual(t, w.Result().StatusCode, http.StatusOK)
	resp := testutil.UnmarshalJSON[web.HealthResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.OK, true)
	if _, ok := resp.Checks["catalog"]; !ok {
		t.Error("catalog health check isn't registered")
	}
}
