// Package telegram implements a thin typed client for the Telegram Bot API
// methods this bot uses.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Asmamaw-kas/MYBOT/internal/request"
)

// DefaultAPIURL is the base URL of the Telegram Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// Client makes calls to the Telegram Bot API on behalf of a single bot.
type Client struct {
	// Token is the Telegram Bot API token.
	Token string
	// HTTPClient is the HTTP client used for making requests. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// APIURL overrides the Bot API base URL. Used in tests; if empty,
	// DefaultAPIURL is used.
	APIURL string
}

// Error is an error returned by the Telegram Bot API.
type Error struct {
	Code        int
	Description string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("telegram: %s (error code %d)", e.Description, e.Code)
}

// response is the envelope every Bot API method responds with.
// https://core.telegram.org/bots/api#making-requests
type response[Result any] struct {
	OK          bool   `json:"ok"`
	Result      Result `json:"result"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return DefaultAPIURL
}

func call[Result any](ctx context.Context, c *Client, method string, args any) (Result, error) {
	resp, err := request.MakeJSON[response[Result]](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        c.apiURL() + "/bot" + c.Token + "/" + method,
		Body:       args,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var zero Result
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	if !resp.OK {
		var zero Result
		return zero, fmt.Errorf("%s: %w", method, &Error{Code: resp.ErrorCode, Description: resp.Description})
	}
	return resp.Result, nil
}

// GetMe returns basic information about the bot.
// https://core.telegram.org/bots/api#getme
func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// SetWebhookParams are the parameters of the SetWebhook method.
type SetWebhookParams struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

// SetWebhook tells Telegram to deliver updates to the given HTTPS URL.
// https://core.telegram.org/bots/api#setwebhook
func (c *Client) SetWebhook(ctx context.Context, params SetWebhookParams) error {
	_, err := call[bool](ctx, c, "setWebhook", params)
	return err
}

// DeleteWebhook removes the webhook integration.
// https://core.telegram.org/bots/api#deletewebhook
func (c *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	_, err := call[bool](ctx, c, "deleteWebhook", map[string]bool{
		"drop_pending_updates": dropPendingUpdates,
	})
	return err
}

// SendMessageParams are the parameters of the SendMessage method.
type SendMessageParams struct {
	ChatID             int64                 `json:"chat_id"`
	Text               string                `json:"text"`
	ParseMode          string                `json:"parse_mode,omitempty"`
	ReplyMarkup        *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	LinkPreviewOptions *LinkPreviewOptions   `json:"link_preview_options,omitempty"`
}

// SendMessage sends a text message.
// https://core.telegram.org/bots/api#sendmessage
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (Message, error) {
	return call[Message](ctx, c, "sendMessage", params)
}

// ForwardMessageParams are the parameters of the ForwardMessage method.
type ForwardMessageParams struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id"`
	MessageID  int64 `json:"message_id"`
}

// ForwardMessage forwards a message of any kind.
// https://core.telegram.org/bots/api#forwardmessage
func (c *Client) ForwardMessage(ctx context.Context, params ForwardMessageParams) (Message, error) {
	return call[Message](ctx, c, "forwardMessage", params)
}

// EditMessageTextParams are the parameters of the EditMessageText method.
type EditMessageTextParams struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// EditMessageText edits the text of a previously sent message.
// https://core.telegram.org/bots/api#editmessagetext
func (c *Client) EditMessageText(ctx context.Context, params EditMessageTextParams) error {
	// The result is the edited Message for bot-sent messages and true
	// otherwise, so don't bother decoding it.
	_, err := call[json.RawMessage](ctx, c, "editMessageText", params)
	return err
}

// AnswerCallbackQuery acknowledges a callback query so the client stops
// showing a progress indicator.
// https://core.telegram.org/bots/api#answercallbackquery
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	_, err := call[bool](ctx, c, "answerCallbackQuery", map[string]string{
		"callback_query_id": id,
	})
	return err
}
