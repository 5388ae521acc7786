/*
Mybot is a Telegram bot that hands out books and films from a private
channel.

Users send the numeric code of a channel post, or a title to search
for, and the bot forwards the matching post to them. New posts in the
channel are indexed as they appear.

The bot receives updates through a webhook at /webhook and exposes a
status page at /, a health endpoint at /health and debug handlers at
/debug/.

# Environment

Mybot is configured entirely through environment variables (a .env file
in the working directory is loaded if present):

	BOT_TOKEN           Telegram Bot API token. Required.
	PRIVATE_CHANNEL_ID  Chat ID of the channel files are forwarded from.
	                    Required.
	PUBLIC_CHANNEL      @username of the public channel where users
	                    browse the catalog. Required.
	WEBHOOK_URL         Public HTTPS URL updates are delivered to.
	                    Required in production mode.
	WEBHOOK_SECRET      Secret token Telegram sends back with every
	                    webhook request.
	DB_PATH             Path to the SQLite catalog database. The catalog
	                    is kept in memory when unset.
	PING_URL            URL pinged every 10 minutes to keep the host
	                    awake.

When running on Render (https://render.com), production mode is enabled
automatically, the listen port is taken from PORT and the webhook and
ping URLs are derived from RENDER_EXTERNAL_URL.

In production mode access to /debug/ requires the webhook secret in the
debug-token query parameter.
*/
package main

import (
	"cmp"
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Asmamaw-kas/MYBOT/internal/bot"
	"github.com/Asmamaw-kas/MYBOT/internal/catalog"
	"github.com/Asmamaw-kas/MYBOT/internal/cli"
	"github.com/Asmamaw-kas/MYBOT/internal/logger"
	"github.com/Asmamaw-kas/MYBOT/internal/request"
	"github.com/Asmamaw-kas/MYBOT/internal/store"
	"github.com/Asmamaw-kas/MYBOT/internal/telegram"
	"github.com/Asmamaw-kas/MYBOT/internal/util/syncx"
	"github.com/Asmamaw-kas/MYBOT/internal/version"
	"github.com/Asmamaw-kas/MYBOT/internal/web"
)

//go:embed main.go
var doc []byte

func main() {
	cli.SetDocComment(doc)
	cli.Main(new(engine))
}

type engine struct {
	addr string
	prod bool

	// Read from the environment in doInit.
	tgToken       string
	webhookURL    string
	secret        string
	channelID     int64
	publicChannel string
	pingURL       string

	initOnce syncx.Lazy[error]

	// Initialized in doInit.
	logf      logger.Logf
	logStream logger.Streamer
	tg        *telegram.Client
	kv        store.Store
	catalog   *catalog.Catalog
	bot       *bot.Bot
	me        telegram.User
	mux       *http.ServeMux

	// Tweakable in tests.
	httpc         *http.Client
	noServerStart bool
	ready         func()
}

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.addr, "addr", "localhost:3000", "Listen on `host:port`.")
	fs.BoolVar(&e.prod, "prod", false, "Production mode: set the Telegram webhook on startup.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	if err := e.doInit(ctx, env); err != nil {
		return err
	}
	defer e.bot.Stop()
	defer e.kv.Close()

	if e.prod {
		if err := e.setWebhook(ctx); err != nil {
			return err
		}
	}
	if e.noServerStart {
		return nil
	}

	if e.pingURL != "" {
		go e.selfPing(ctx)
	}

	err := web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:       e.addr,
		Mux:        e.mux,
		Logf:       e.logf,
		Debuggable: true,
		DebugAuth:  e.debugAuth,
		Ready:      e.ready,
	})

	if e.prod {
		// Stop Telegram from delivering updates to the dying instance.
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if derr := e.tg.DeleteWebhook(dctx, false); derr != nil {
			e.logf("Deleting webhook: %v", derr)
		}
	}

	return err
}

func (e *engine) doInit(ctx context.Context, env *cli.Env) error {
	return e.initOnce.Get(func() error { return e.init(ctx, env) })
}

func (e *engine) init(ctx context.Context, env *cli.Env) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %v", err)
	}

	if e.httpc == nil {
		e.httpc = request.DefaultClient
	}
	e.logStream = logger.NewStreamer(300)
	e.logf = log.New(io.MultiWriter(env.Stderr, e.logStream), "", log.LstdFlags).Printf

	// Render (https://render.com) sets these variables itself.
	if env.Getenv("RENDER") == "true" {
		e.prod = true
		if port := env.Getenv("PORT"); port != "" {
			e.addr = ":" + port
		}
	}
	var renderWebhookURL, renderPingURL string
	if ext := env.Getenv("RENDER_EXTERNAL_URL"); ext != "" {
		renderWebhookURL = ext + "/webhook"
		renderPingURL = ext + "/health"
	}

	e.tgToken = env.Getenv("BOT_TOKEN")
	e.publicChannel = env.Getenv("PUBLIC_CHANNEL")
	e.secret = env.Getenv("WEBHOOK_SECRET")
	e.webhookURL = cmp.Or(env.Getenv("WEBHOOK_URL"), renderWebhookURL)
	e.pingURL = cmp.Or(env.Getenv("PING_URL"), renderPingURL)
	channelID := env.Getenv("PRIVATE_CHANNEL_ID")

	var missing []string
	if e.tgToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if channelID == "" {
		missing = append(missing, "PRIVATE_CHANNEL_ID")
	}
	if e.publicChannel == "" {
		missing = append(missing, "PUBLIC_CHANNEL")
	}
	if e.prod && e.webhookURL == "" {
		missing = append(missing, "WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing environment variables: %s", cli.ErrInvalidArgs, strings.Join(missing, ", "))
	}

	var err error
	e.channelID, err = strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: PRIVATE_CHANNEL_ID must be a numeric chat ID: %v", cli.ErrInvalidArgs, err)
	}

	pairs := []string{e.tgToken, "[bot token]"}
	if e.secret != "" {
		pairs = append(pairs, e.secret, "[webhook secret]")
	}
	scrubber := strings.NewReplacer(pairs...)

	e.tg = &telegram.Client{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Scrubber:   scrubber,
	}

	if dbPath := env.Getenv("DB_PATH"); dbPath != "" {
		e.kv, err = store.OpenSQLite(ctx, dbPath)
		if err != nil {
			return err
		}
	} else {
		e.logf("DB_PATH is not set; the catalog won't survive restarts.")
		e.kv = store.NewMem()
	}
	if e.catalog, err = catalog.Open(ctx, e.kv); err != nil {
		return err
	}

	if e.me, err = e.tg.GetMe(ctx); err != nil {
		return fmt.Errorf("identifying bot: %w", err)
	}
	e.logf("Running as @%s.", e.me.Username)

	if e.bot, err = bot.New(bot.Opts{
		Client:        e.tg,
		Catalog:       e.catalog,
		ChannelID:     e.channelID,
		PublicChannel: e.publicChannel,
		Secret:        e.secret,
		BotUsername:   e.me.Username,
		Logf:          e.logf,
	}); err != nil {
		return err
	}

	e.initRoutes()
	return nil
}

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("POST /webhook", e.bot.HandleWebhook)

	e.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, map[string]any{
			"status":  "ok",
			"bot":     "@" + e.me.Username,
			"catalog": e.catalog.Len(),
			"version": version.Version().String(),
		})
	})

	health := web.Health(e.mux)
	health.RegisterFunc("catalog", func() (string, bool) {
		return fmt.Sprintf("%d items", e.catalog.Len()), true
	})
	health.RegisterFunc("store", func() (string, bool) {
		_, err := e.kv.Get(context.Background(), "health/probe")
		if err != nil && !errors.Is(err, store.ErrNotExist) {
			return err.Error(), false
		}
		return "reachable", true
	})
	health.RegisterFunc("telegram", func() (string, bool) {
		return "@" + e.me.Username, true
	})

	dbg := web.Debugger(e.logf, e.mux)
	dbg.KVFunc("Catalog size", func() any { return e.catalog.Len() })
	dbg.Handle("log", "Log", e.logStream)
}

func (e *engine) debugAuth(r *http.Request) bool {
	if !e.prod {
		return true
	}
	return e.secret != "" && r.URL.Query().Get("debug-token") == e.secret
}

func (e *engine) setWebhook(ctx context.Context) error {
	err := e.tg.SetWebhook(ctx, telegram.SetWebhookParams{
		URL:                e.webhookURL,
		SecretToken:        e.secret,
		DropPendingUpdates: true,
		AllowedUpdates: []string{
			"message", "callback_query", "channel_post",
		},
	})
	if err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}
	e.logf("Webhook set to %s.", e.webhookURL)
	return nil
}

// selfPing keeps a free-tier host from going to sleep by fetching pingURL
// every 10 minutes.
func (e *engine) selfPing(ctx context.Context) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.pingURL, nil)
			if err != nil {
				e.logf("Self-ping: %v", err)
				continue
			}
			res, err := e.httpc.Do(req)
			if err != nil {
				e.logf("Self-ping: %v", err)
				continue
			}
			res.Body.Close()
			if res.StatusCode != http.StatusOK {
				e.logf("Self-ping: %s returned %d", e.pingURL, res.StatusCode)
			}
		}
	}
}
