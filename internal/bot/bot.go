// Package bot implements the Telegram update handling logic: it receives
// webhook updates and relays files from the source channel to the users who
// request them.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Asmamaw-kas/MYBOT/internal/catalog"
	"github.com/Asmamaw-kas/MYBOT/internal/logger"
	"github.com/Asmamaw-kas/MYBOT/internal/telegram"
	"github.com/Asmamaw-kas/MYBOT/internal/web"
)

// secretTokenHeader is the header Telegram sends the webhook secret in.
// https://core.telegram.org/bots/api#setwebhook
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// defaultDedupTTL is how long processed update IDs are remembered. Telegram
// retries webhook deliveries it considers failed, so the window only needs
// to cover the retry horizon.
const defaultDedupTTL = 10 * time.Minute

// Opts are the options for New.
type Opts struct {
	// Client is the Telegram Bot API client. Required.
	Client *telegram.Client
	// Catalog indexes the source channel posts. Required.
	Catalog *catalog.Catalog
	// ChannelID is the chat ID of the private source channel files are
	// forwarded from. Required.
	ChannelID int64
	// PublicChannel is the @username or invite URL of the public channel
	// users are pointed to. Required.
	PublicChannel string
	// Secret is the webhook secret token. If empty, the secret header check
	// is skipped.
	Secret string
	// BotUsername is the bot's own username, shown in help text.
	BotUsername string
	// Logf logs messages. If nil, log.Printf is used.
	Logf logger.Logf
	// DedupTTL overrides how long processed update IDs are remembered.
	DedupTTL time.Duration
}

// Bot processes Telegram updates.
type Bot struct {
	opts Opts
	seen *ttlcache.Cache[int64, struct{}]
}

// New returns a new Bot.
func New(opts Opts) (*Bot, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("bot: Opts.Client is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("bot: Opts.Catalog is required")
	}
	if opts.ChannelID == 0 {
		return nil, fmt.Errorf("bot: Opts.ChannelID is required")
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	ttl := opts.DedupTTL
	if ttl == 0 {
		ttl = defaultDedupTTL
	}
	b := &Bot{
		opts: opts,
		seen: ttlcache.New(ttlcache.WithTTL[int64, struct{}](ttl)),
	}
	go b.seen.Start()
	return b, nil
}

// Stop stops background cache expiration. It's safe to call Stop more than
// once.
func (b *Bot) Stop() { b.seen.Stop() }

// HandleWebhook is the handler of POST /webhook.
//
// It always responds 200 to valid requests, even when update handling
// fails: otherwise Telegram keeps redelivering the update. Requests that
// don't carry the expected secret token get 404.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if b.opts.Secret != "" && r.Header.Get(secretTokenHeader) != b.opts.Secret {
		web.RespondJSONError(b.opts.Logf, w, web.ErrNotFound)
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		web.RespondJSONError(b.opts.Logf, w, fmt.Errorf("%w: decoding update: %v", web.ErrBadRequest, err))
		return
	}

	if b.seen.Has(u.ID) {
		b.opts.Logf("bot: skipping already seen update %d", u.ID)
		web.RespondJSON(w, map[string]string{"status": "ok"})
		return
	}
	b.seen.Set(u.ID, struct{}{}, ttlcache.DefaultTTL)

	if err := b.handle(r.Context(), &u); err != nil {
		b.opts.Logf("bot: handling update %d: %v", u.ID, err)
		b.notifyFailure(r.Context(), &u)
	}
	web.RespondJSON(w, map[string]string{"status": "ok"})
}

// notifyFailure makes a best-effort attempt to tell the user something went
// wrong.
func (b *Bot) notifyFailure(ctx context.Context, u *telegram.Update) {
	if u.Message == nil || u.Message.Chat.Type != "private" {
		return
	}
	_, err := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: u.Message.Chat.ID,
		Text:   "Something went wrong, please try again later.",
	})
	if err != nil {
		b.opts.Logf("bot: notifying chat %d: %v", u.Message.Chat.ID, err)
	}
}

func (b *Bot) handle(ctx context.Context, u *telegram.Update) error {
	switch {
	case u.ChannelPost != nil:
		return b.handleChannelPost(ctx, u.ChannelPost)
	case u.CallbackQuery != nil:
		return b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		return b.handleMessage(ctx, u.Message)
	}
	// Update kinds we didn't subscribe to; nothing to do.
	return nil
}

// handleChannelPost indexes new posts in the source channel.
func (b *Bot) handleChannelPost(ctx context.Context, m *telegram.Message) error {
	if m.Chat.ID != b.opts.ChannelID {
		return nil
	}
	e := catalog.FromMessage(m)
	if err := b.opts.Catalog.Remember(ctx, e); err != nil {
		return err
	}
	b.opts.Logf("bot: cataloged %s %d (%q)", e.Kind, e.Code, e.Title)
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) error {
	if m.Chat.Type != "private" {
		return nil
	}

	text := strings.TrimSpace(m.Text)
	switch {
	case text == "/start":
		return b.sendWelcome(ctx, m.Chat.ID)
	case text == "/help":
		_, err := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:    m.Chat.ID,
			Text:      b.helpText(),
			ParseMode: "HTML",
		})
		return err
	case isCode(text):
		code, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return err
		}
		return b.sendItem(ctx, m.Chat.ID, code)
	case text != "":
		return b.search(ctx, m.Chat.ID, text)
	}
	// A bare media message or sticker; ignore it.
	return nil
}

func isCode(s string) bool {
	if s == "" || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sendItem forwards the channel post with the given code to the chat.
func (b *Bot) sendItem(ctx context.Context, chatID, code int64) error {
	_, err := b.opts.Client.ForwardMessage(ctx, telegram.ForwardMessageParams{
		ChatID:     chatID,
		FromChatID: b.opts.ChannelID,
		MessageID:  code,
	})
	if err != nil {
		var apiErr *telegram.Error
		if errors.As(err, &apiErr) {
			// The code doesn't point to an existing post. Tell the user
			// instead of failing the update.
			_, serr := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
				ChatID: chatID,
				Text: fmt.Sprintf(
					"Couldn't find an item with code %d. Browse %s for available codes.",
					code, b.opts.PublicChannel,
				),
			})
			return serr
		}
		return err
	}
	_, err = b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   "✅ Sent!",
	})
	return err
}

// search looks the query up in the catalog. A single hit is forwarded
// directly, multiple hits become a list of codes to pick from.
func (b *Bot) search(ctx context.Context, chatID int64, query string) error {
	found := b.opts.Catalog.Search(query)
	switch len(found) {
	case 0:
		_, err := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: chatID,
			Text: fmt.Sprintf(
				"Nothing matched %q. Send a numeric code from %s, or try a different title.",
				query, b.opts.PublicChannel,
			),
		})
		return err
	case 1:
		return b.sendItem(ctx, chatID, found[0].Code)
	}

	var sb strings.Builder
	sb.WriteString("Found several matches, send a code to get one:\n\n")
	for _, e := range found {
		fmt.Fprintf(&sb, "<code>%d</code> — %s\n", e.Code, htmlEscape(e.Title))
	}
	_, err := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    chatID,
		Text:      sb.String(),
		ParseMode: "HTML",
	})
	return err
}

func (b *Bot) sendWelcome(ctx context.Context, chatID int64) error {
	_, err := b.opts.Client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    chatID,
		Text:      "👋 <b>Welcome!</b>\n\nI deliver books and films from our channel. Pick an option below to begin.",
		ParseMode: "HTML",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{
					{Text: "🚀 Get Started", CallbackData: "get_started"},
					{Text: "❓ Help", CallbackData: "help"},
				},
				{
					{Text: "📚 Join Channel", URL: b.channelURL()},
				},
			},
		},
	})
	return err
}

func (b *Bot) channelURL() string {
	ch := b.opts.PublicChannel
	if strings.HasPrefix(ch, "@") {
		return "https://t.me/" + strings.TrimPrefix(ch, "@")
	}
	return ch
}

func (b *Bot) helpText() string {
	return fmt.Sprintf(
		"<b>How to use this bot</b>\n\n"+
			"1. Browse %s and find an item you want.\n"+
			"2. Copy its numeric code.\n"+
			"3. Send the code here and I'll deliver the file.\n\n"+
			"You can also send me a title and I'll search for it.",
		htmlEscape(b.opts.PublicChannel),
	)
}

func (b *Bot) getStartedText() string {
	return fmt.Sprintf(
		"<b>Getting started</b>\n\n"+
			"Every post in %s has a numeric code. Send me that code and "+
			"I'll forward you the file right away.\n\n"+
			"Not sure about the code? Just send me the title instead.",
		htmlEscape(b.opts.PublicChannel),
	)
}

// handleCallback reacts to inline keyboard button presses from the welcome
// message.
func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if err := b.opts.Client.AnswerCallbackQuery(ctx, q.ID); err != nil {
		return err
	}
	if q.Message == nil {
		return nil
	}

	var text string
	switch q.Data {
	case "get_started":
		text = b.getStartedText()
	case "help":
		text = b.helpText()
	default:
		b.opts.Logf("bot: unknown callback data %q from user %d", q.Data, q.From.ID)
		return nil
	}

	return b.opts.Client.EditMessageText(ctx, telegram.EditMessageTextParams{
		ChatID:    q.Message.Chat.ID,
		MessageID: q.Message.ID,
		Text:      text,
		ParseMode: "HTML",
	})
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
