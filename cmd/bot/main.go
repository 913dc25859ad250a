// Package main is the entry point for the Messenger support bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/bot"
	"github.com/speednet-khulna/messenger-bot/internal/config"
	"github.com/speednet-khulna/messenger-bot/internal/conversation"
	"github.com/speednet-khulna/messenger-bot/internal/handler"
	"github.com/speednet-khulna/messenger-bot/internal/knowledge"
	"github.com/speednet-khulna/messenger-bot/internal/llm"
	"github.com/speednet-khulna/messenger-bot/internal/messenger"
	"github.com/speednet-khulna/messenger-bot/internal/middleware"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	natsclient "github.com/speednet-khulna/messenger-bot/internal/nats"
	"github.com/speednet-khulna/messenger-bot/internal/store"
	"github.com/speednet-khulna/messenger-bot/internal/throttle"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
	"github.com/speednet-khulna/messenger-bot/pkg/tracing"
)

const serviceName = "messenger-bot"

// defaultPageID keys the single tenant when PAGE_ID is not configured.
const defaultPageID = "default"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("starting bot server",
		zap.String("page_name", cfg.PageName),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("llm_model", cfg.LLMModel),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	log.Info("store opened", zap.String("backend", store.Backend(st)))

	pageID := cfg.PageID
	if pageID == "" {
		pageID = defaultPageID
	}
	tenant, err := seedTenant(ctx, cfg, st, pageID, log)
	if err != nil {
		return err
	}

	var (
		natsClient *natsclient.Client
		publisher  *natsclient.EventPublisher
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     serviceName,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log.Named("nats"))
		if err != nil {
			return err
		}
		defer natsClient.Drain()

		publisher = natsclient.NewEventPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	limiter, err := newLimiter(ctx, cfg, natsClient, log)
	if err != nil {
		return err
	}

	llmClient, err := llm.NewClient(llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey(), cfg.OpenAIBaseURL)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	triggers := knowledge.DefaultTriggers
	if cfg.TriggersFile != "" {
		if triggers, err = knowledge.LoadTriggers(cfg.TriggersFile); err != nil {
			return err
		}
	}

	sender := messenger.New(cfg.GraphAPIURL, cfg.GraphAPIVersion, messenger.WithRateLimit(cfg.SendRatePerSec, cfg.SendBurst))
	pruner := conversation.NewPruner(st,
		conversation.NewLLMSummarizer(llmClient, cfg.LLMModel, cfg.LLMMaxTokens),
		cfg.PruneThreshold, cfg.PruneBatch, log.Named("pruner"))

	deps := bot.Deps{
		Store:   st,
		Limiter: limiter,
		LLM:     llmClient,
		Sender:  sender,
		Pruner:  pruner,
		Logger:  log,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	pipeline := bot.NewPipeline(bot.Config{
		DefaultPageID:   pageID,
		SingleTenant:    cfg.PageID == "",
		Hotline:         cfg.Hotline,
		PackageImageURL: cfg.PackageImageURL,
		Triggers:        triggers,
		Model:           cfg.LLMModel,
		MaxTokens:       cfg.LLMMaxTokens,
		Temperature:     cfg.LLMTemperature,
		LLMTimeout:      cfg.LLMTimeout,
		HistoryWindow:   cfg.HistoryWindow,
	}, deps)
	pipeline.CacheTenant(tenant)
	pool := bot.NewPool(pipeline, cfg.WorkerCount, cfg.QueueSize, log.Named("worker"))

	checks := map[string]handler.Pinger{"store": st}
	var events handler.EventReader
	if natsClient != nil {
		checks["nats"] = natsClient
		events = publisher
	}
	healthHandler := handler.NewHealthHandler(banner(cfg.PageName), checks)
	webhookHandler := handler.NewWebhookHandler(cfg.VerifyToken, pool, log)
	conversationHandler := handler.NewConversationHandler(st, events, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/", healthHandler.Home)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhook", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.WebhookRateRequests, time.Minute))
		r.Get("/", webhookHandler.Verify)
		r.With(middleware.HubSignature(cfg.AppSecret)).Post("/", webhookHandler.Receive)
	})

	if cfg.JWTSecret != "" {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"https://*", "http://*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
				ExposedHeaders: []string{"X-Correlation-ID"},
				MaxAge:         300,
			}))
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireScope(middleware.ScopeConversationsRead))
			r.Use(middleware.SubjectRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Route("/pages/{pageID}/senders/{senderID}", func(r chi.Router) {
				r.Get("/profile", conversationHandler.Profile)
				r.Get("/history", conversationHandler.History)
				r.Get("/events", conversationHandler.Events)
			})
		})
	} else {
		log.Info("JWT_SECRET not set, inspection API disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("worker pool did not drain in time", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// seedTenant registers the configured page with its knowledge base. A
// missing knowledge base file is logged and replaced by a placeholder.
func seedTenant(ctx context.Context, cfg *config.Config, st store.Store, pageID string, log *logger.Logger) (model.Tenant, error) {
	kb, err := knowledge.ReadFile(cfg.KnowledgeBaseFile)
	if err != nil {
		log.Error("knowledge base not loaded", zap.String("file", cfg.KnowledgeBaseFile), zap.Error(err))
	}

	tenant := model.Tenant{
		PageID:        pageID,
		AccessToken:   cfg.PageAccessToken,
		KnowledgeBase: kb,
		BotName:       cfg.BotName,
		PageName:      cfg.PageName,
	}
	if err := st.UpsertTenant(ctx, tenant); err != nil {
		return tenant, fmt.Errorf("failed to seed tenant: %w", err)
	}

	base := knowledge.Parse(kb)
	log.Info("tenant registered",
		zap.String("page_id", pageID),
		zap.Strings("sections", base.Names()),
	)
	if base.Headless() {
		log.Warn("knowledge base has no \"## \" headings; its text is only used when a trigger targets the \"general\" section",
			zap.String("file", cfg.KnowledgeBaseFile))
	}
	return tenant, nil
}

// newLimiter picks the shared JetStream limiter when requested and
// available, otherwise the in-process one with a background sweeper.
func newLimiter(ctx context.Context, cfg *config.Config, nc *natsclient.Client, log *logger.Logger) (throttle.Limiter, error) {
	if cfg.NATSThrottle {
		if nc == nil {
			return nil, errors.New("NATS_THROTTLE requires NATS_URL")
		}
		kv, err := throttle.NewKV(ctx, nc.JetStream(), throttle.DefaultBucket, cfg.ThrottleCooldown)
		if err != nil {
			return nil, err
		}
		log.Info("using shared throttle", zap.String("bucket", throttle.DefaultBucket))
		return kv, nil
	}

	mem := throttle.NewMemory(cfg.ThrottleCooldown)
	go mem.Run(ctx, time.Minute)
	return mem, nil
}

func banner(pageName string) string {
	return strings.TrimSpace(pageName) + " এআই সার্ভার সচল আছে!"
}

// issueToken prints a signed inspection API token:
//
//	bot token -sub ops -page 1234567890 -ttl 24h
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "ops", "token subject")
	page := fs.String("page", "", "restrict the token to one page id")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	token, err := middleware.NewToken(cfg.JWTSecret, *sub, *page, []string{middleware.ScopeConversationsRead}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
