// Command bot serves the LINE webhook that answers product queries from the
// catalog. Incoming text is translated for the cross-lingual query variant,
// planned into per-site retrievals, and answered with a flex carousel.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/shopscout-tw/shopscout/engine/catalog"
	"github.com/shopscout-tw/shopscout/engine/domain"
	"github.com/shopscout-tw/shopscout/engine/retrieval"
	"github.com/shopscout-tw/shopscout/pkg/fn"
	"github.com/shopscout-tw/shopscout/pkg/linebot"
	"github.com/shopscout-tw/shopscout/pkg/metrics"
	"github.com/shopscout-tw/shopscout/pkg/mid"
	"github.com/shopscout-tw/shopscout/pkg/openai"
)

var met = metrics.New()

var (
	mQueries    = func(outcome string) *metrics.Counter { return met.Counter(metrics.WithLabels("shopscout_bot_queries_total", "outcome", outcome), "User queries by outcome") }
	mBadSig     = met.Counter("shopscout_bot_bad_signature_total", "Webhook calls with an invalid signature")
	mQueryDur   = met.Histogram("shopscout_bot_query_duration_seconds", "End-to-end query handling time", nil)
	mReplyFails = met.Counter("shopscout_bot_reply_failures_total", "Replies the Messaging API rejected")
)

const (
	welcomeText     = "歡迎使用比價小幫手！輸入想找的商品，我會幫你搜尋 ebay、momo 和 PChome 的商品。"
	noResultsText   = "搜尋不到符合條件的商品，請換個關鍵字試試。"
	unavailableText = "服務暫時無法使用，請稍後再試。"
)

var siteLabels = map[domain.Site]string{
	domain.SiteEbay:   "ebay",
	domain.SiteMomo:   "momo",
	domain.SitePchome: "PChome",
}

// replier sends messages back through the Messaging API.
type replier interface {
	Reply(ctx context.Context, replyToken string, messages ...linebot.ReplyMessage) error
}

// searcher answers a two-variant product query.
type searcher interface {
	Search(ctx context.Context, query retrieval.Query) ([]domain.Product, error)
}

// translator renders Chinese query text into English.
type translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type bot struct {
	secret    string
	line      replier
	planner   searcher
	translate translator
	log       *slog.Logger
}

// dispatchTimeout bounds the handling of one webhook event.
const dispatchTimeout = 30 * time.Second

func (b *bot) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if !linebot.ValidateSignature(b.secret, body, r.Header.Get(linebot.SignatureHeader)) {
		mBadSig.Inc()
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	events, err := linebot.ParseWebhook(body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	// Ack immediately; LINE retries webhooks that do not answer quickly, so
	// the catalog query must not hold the response open.
	w.WriteHeader(http.StatusOK)
	go b.dispatch(context.WithoutCancel(r.Context()), events)
}

func (b *bot) dispatch(ctx context.Context, events []linebot.Event) {
	for _, ev := range events {
		evCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		switch {
		case ev.Type == linebot.EventFollow:
			b.reply(evCtx, ev.ReplyToken, linebot.TextMessage(welcomeText))
		case ev.Type == linebot.EventMessage && ev.Message.Type == "text":
			b.handleQuery(evCtx, ev.ReplyToken, ev.Message.Text)
		}
		cancel()
	}
}

func (b *bot) handleQuery(ctx context.Context, replyToken, text string) {
	start := time.Now()
	defer mQueryDur.Since(start)

	english, err := b.translate.Translate(ctx, text)
	if err != nil {
		// Chinese-language sources still work without the translation.
		b.log.Warn("translate failed, using original text", "error", err)
		english = text
	}

	products, err := b.planner.Search(ctx, retrieval.Query{Chinese: text, English: english})
	if err != nil {
		mQueries("error").Inc()
		b.reply(ctx, replyToken, linebot.TextMessage(unavailableText))
		return
	}
	if len(products) == 0 {
		mQueries("empty").Inc()
		b.reply(ctx, replyToken, linebot.TextMessage(noResultsText))
		return
	}

	bubbles := fn.Map(products, func(p domain.Product) map[string]any {
		return linebot.ProductBubble(p.Name, p.Href, p.ImageURL, siteLabels[p.Site], p.PriceTWD)
	})

	mQueries("ok").Inc()
	alt := fmt.Sprintf("找到 %d 件商品", len(products))
	b.reply(ctx, replyToken, linebot.FlexMessage(alt, linebot.Carousel(bubbles)))
}

func (b *bot) reply(ctx context.Context, replyToken string, msg linebot.ReplyMessage) {
	if err := b.line.Reply(ctx, replyToken, msg); err != nil {
		mReplyFails.Inc()
		b.log.Error("reply failed", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	var (
		addr        = flag.String("addr", envOr("BOT_ADDR", ":8080"), "listen address")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_ADDR", "localhost:6334"), "Qdrant gRPC address")
		collection  = flag.String("collection", envOr("QDRANT_COLLECTION", "products"), "Qdrant collection name")
		openaiURL   = flag.String("openai", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible base URL (empty for hosted)")
		embedModel  = flag.String("embed-model", envOr("EMBED_MODEL", "text-embedding-3-small"), "embedding model")
		chatModel   = flag.String("chat-model", envOr("CHAT_MODEL", "gpt-4o-mini"), "chat model for intent and translation")
		metricsPort = flag.Int("metrics-port", 9093, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	secret := os.Getenv("LINE_CHANNEL_SECRET")
	token := os.Getenv("LINE_CHANNEL_TOKEN")
	if secret == "" || token == "" {
		log.Error("LINE_CHANNEL_SECRET and LINE_CHANNEL_TOKEN are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := catalog.New(*qdrantAddr, *collection, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ai := openai.New(*openaiURL, os.Getenv("OPENAI_API_KEY"), *embedModel, *chatModel)
	planner := retrieval.New(ai, retrieval.NewLLMIntentParser(ai), store, retrieval.DefaultOptions(), log)

	b := &bot{
		secret:    secret,
		line:      linebot.NewClient(token),
		planner:   planner,
		translate: ai,
		log:       log,
	}

	met.ServeAsync(*metricsPort)

	r := chi.NewRouter()
	r.Use(mid.OTel("shopscout-bot"), mid.Recover(log), mid.Logger(log))
	r.Post("/webhook", b.webhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info("bot listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("shut down")
}
