package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Asmamaw-kas/MYBOT/internal/testutil"
	"github.com/Asmamaw-kas/MYBOT/internal/web"
)

const testToken = "123456:ABC-DEF1234ghIkl"

func testClient(h http.Handler) *Client {
	return &Client{
		Token:      testToken,
		HTTPClient: testutil.MockHTTPClient(h),
	}
}

func TestGetMe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/getMe", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "bot"+testToken {
			http.NotFound(w, r)
			return
		}
		web.RespondJSON(w, response[User]{
			OK:     true,
			Result: User{ID: 1, IsBot: true, FirstName: "Test", Username: "testbot"},
		})
	})

	me, err := testClient(mux).GetMe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, me.Username, "testbot")
	testutil.AssertEqual(t, me.IsBot, true)
}

func TestSendMessage(t *testing.T) {
	var got SendMessageParams

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		web.RespondJSON(w, response[Message]{
			OK:     true,
			Result: Message{ID: 42, Chat: Chat{ID: got.ChatID}, Text: got.Text},
		})
	})

	msg, err := testClient(mux).SendMessage(context.Background(), SendMessageParams{
		ChatID:    100,
		Text:      "hello",
		ParseMode: "HTML",
		ReplyMarkup: &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{{Text: "Help", CallbackData: "help"}},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, msg.ID, int64(42))
	testutil.AssertEqual(t, got.ChatID, int64(100))
	testutil.AssertEqual(t, got.ParseMode, "HTML")
	testutil.AssertEqual(t, got.ReplyMarkup.InlineKeyboard[0][0].CallbackData, "help")
}

func TestForwardMessage(t *testing.T) {
	var got ForwardMessageParams

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/forwardMessage", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		web.RespondJSON(w, response[Message]{
			OK:     true,
			Result: Message{ID: 7, Chat: Chat{ID: got.ChatID}},
		})
	})

	_, err := testClient(mux).ForwardMessage(context.Background(), ForwardMessageParams{
		ChatID:     100,
		FromChatID: -1001234567890,
		MessageID:  55,
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got.FromChatID, int64(-1001234567890))
	testutil.AssertEqual(t, got.MessageID, int64(55))
}

func TestAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/forwardMessage", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, response[Message]{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: message to forward not found",
		})
	})

	_, err := testClient(mux).ForwardMessage(context.Background(), ForwardMessageParams{
		ChatID: 100, FromChatID: -100123, MessageID: 999,
	})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *telegram.Error", err)
	}
	testutil.AssertEqual(t, apiErr.Code, 400)
	if !strings.Contains(apiErr.Error(), "message to forward not found") {
		t.Errorf("error %q doesn't mention the description", apiErr.Error())
	}
}

func TestSetWebhook(t *testing.T) {
	var got SetWebhookParams

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/setWebhook", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		web.RespondJSON(w, response[bool]{OK: true, Result: true})
	})

	err := testClient(mux).SetWebhook(context.Background(), SetWebhookParams{
		URL:                "https://example.com/webhook",
		SecretToken:        "secret",
		DropPendingUpdates: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got.URL, "https://example.com/webhook")
	testutil.AssertEqual(t, got.SecretToken, "secret")
	testutil.AssertEqual(t, got.DropPendingUpdates, true)
}

func TestAnswerCallbackQuery(t *testing.T) {
	var got map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/answerCallbackQuery", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		web.RespondJSON(w, response[bool]{OK: true, Result: true})
	})

	if err := testClient(mux).AnswerCallbackQuery(context.Background(), "cb123"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got["callback_query_id"], "cb123")
}

func TestEditMessageTextToleratesBoolResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/editMessageText", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, response[json.RawMessage]{OK: true, Result: json.RawMessage("true")})
	})

	err := testClient(mux).EditMessageText(context.Background(), EditMessageTextParams{
		ChatID: 100, MessageID: 42, Text: "edited",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScrubberHidesToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/getMe", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	c := testClient(mux)
	c.Scrubber = strings.NewReplacer(testToken, "[EXPUNGED]")

	_, err := c.GetMe(context.Background())
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Errorf("error %q leaks the bot token", err)
	}
}
