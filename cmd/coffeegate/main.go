package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/paybrew/coffeegate/internal/ai"
	"github.com/paybrew/coffeegate/internal/api"
	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/chat/steps"
	"github.com/paybrew/coffeegate/internal/config"
	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/kv"
	"github.com/paybrew/coffeegate/internal/provider"
	"github.com/paybrew/coffeegate/internal/provider/bmc"
	"github.com/paybrew/coffeegate/internal/ratelimit"
	"github.com/paybrew/coffeegate/internal/server"
	"github.com/paybrew/coffeegate/internal/session"
	"github.com/paybrew/coffeegate/internal/telemetry"
	"github.com/paybrew/coffeegate/internal/token"
	"github.com/paybrew/coffeegate/internal/verify"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("coffeegate", logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store := kv.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := store.Ping(context.Background()); err != nil {
		log.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
	}

	// Payment providers
	providers := provider.NewRegistry()
	providers.Register(
		bmc.New(bmc.WithPerCoffeeDuration(time.Duration(cfg.Providers.BMC.PerCoffeeMinutes)*time.Minute)),
		provider.Metadata{Name: "Buy Me a Coffee", URL: cfg.Providers.BMC.URL, Icon: "Coffee"},
	)

	// Stores
	tokens := token.NewStore(store, time.Duration(cfg.Tokens.TransactionTTLSeconds)*time.Second, logger)
	history := event.NewHistory(store, time.Duration(cfg.Tokens.EventTTLSeconds)*time.Second, logger)
	sessions := session.NewStore(store, logger)
	contexts := chat.NewContextStore(store, time.Duration(cfg.Chat.ContextTTLSeconds)*time.Second, logger)

	// Event routing: donations carrying a transaction id become verifiable
	// tokens; a refund revokes the token; everything lands in the history.
	router := event.NewRouter(logger)
	storeHistory := func(ctx context.Context, ev event.Normalized) error {
		return history.StoreEvent(ctx, ev)
	}
	for _, eventType := range bmc.EventTypes() {
		router.RegisterHandler(bmc.ProviderID, eventType, storeHistory)
	}
	for _, eventType := range []string{"donation.created", "donation.updated"} {
		router.RegisterHandler(bmc.ProviderID, eventType, func(ctx context.Context, ev event.Normalized) error {
			return tokens.Put(ctx, ev)
		})
	}
	router.RegisterHandler(bmc.ProviderID, "donation.refunded", func(ctx context.Context, ev event.Normalized) error {
		return tokens.Delete(ctx, ev.ProviderID, ev.ExternalID)
	})

	// Verification and the conversation engine
	verifier := verify.NewService(tokens, providers, logger)
	generator := ai.NewClient(cfg.AI.APIKey,
		ai.WithBaseURL(cfg.AI.BaseURL),
		ai.WithModel(cfg.AI.Model),
		ai.WithTimeout(time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
		ai.WithTokenBudget(cfg.AI.TokenBudget),
	)
	engine := chat.NewEngine(logger,
		steps.NewFAQ(cfg.Chat.FAQ),
		steps.NewCoffeeBreak(providers, cfg.Chat.Messages),
		steps.NewProviderMessage(),
		steps.NewVerify(verifier, sessions, cfg.Chat.Messages, logger),
		steps.NewAIChat(generator, cfg.Chat.Messages, logger),
	)

	limiter := ratelimit.New(store, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, logger)

	handlers := &api.Handlers{
		Logger:    logger,
		Providers: providers,
		Secrets: map[string]string{
			bmc.ProviderID: cfg.Providers.BMC.Secret,
		},
		Router:         router,
		History:        history,
		Verifier:       verifier,
		Sessions:       sessions,
		Contexts:       contexts,
		Engine:         engine,
		Limiter:        limiter,
		Store:          store,
		RateLimitMax:   cfg.RateLimit.MaxRequests,
		MaxAutoAdvance: cfg.Chat.MaxAutoAdvance,
		APIKey:         cfg.API.Key,
	}

	srv := server.New(cfg.Server.Port, logger)
	handlers.Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Server shutdown complete")
}
