package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/blobstore"
	"github.com/harborchat/companion/internal/config"
	"github.com/harborchat/companion/internal/entitlement"
	"github.com/harborchat/companion/internal/handler"
	chatHandler "github.com/harborchat/companion/internal/handler/chat"
	"github.com/harborchat/companion/internal/learning"
	"github.com/harborchat/companion/internal/lexicon"
	"github.com/harborchat/companion/internal/model/persona"
	"github.com/harborchat/companion/internal/responder"
	"github.com/harborchat/companion/internal/service/conversation"
)

const (
	redisPingAttempts = 5
	redisPingDelay    = 2 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	blobs, cleanup, err := newBlobStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer cleanup()

	personas, err := persona.NewBlobStore(ctx, blobs, logger)
	if err != nil {
		logger.Fatal("failed to load personas", zap.Error(err))
	}

	learned := learning.NewStore(blobs, cfg.Learning.Scope, logger)
	emotions := lexicon.NewEmotionLexicon()
	memories := lexicon.NewMemoryLexicon()
	composer := responder.NewLocalComposer(emotions, memories, learned, nil)

	var provider responder.CompletionProvider
	var tester chatHandler.ConnectionTester
	if cfg.AI.Enabled {
		client := responder.NewProxyClient(cfg.AI.BaseURL, cfg.AI.Timeout, logger)
		provider = client
		tester = client
		logger.Info("remote completion enabled", zap.String("baseURL", cfg.AI.BaseURL))
	} else {
		logger.Info("remote completion disabled, replies come from the local composer")
	}

	gate := entitlement.NewTrialGate(cfg.Entitlement.State, time.Now(), cfg.Entitlement.TrialDays)

	conv := conversation.NewService(personas, provider, composer, gate, learned, blobs, emotions, conversation.Config{
		AIEnabled:                  cfg.AI.Enabled,
		LocalFallbackForUnentitled: cfg.AI.LocalFallbackForUnentitled,
		TypingLead:                 cfg.AI.TypingLead,
		TypingTrail:                cfg.AI.TypingTrail,
	}, logger)

	scheduler, err := learning.NewScheduler(cfg.Learning.CronSpec, learned, conv, logger)
	if err != nil {
		logger.Fatal("failed to initialize relearn scheduler", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := handler.NewRouter(personas, conv, tester, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// newBlobStore picks Redis when configured and falls back to the in-memory
// store otherwise. The returned cleanup closes the Redis client.
func newBlobStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (blobstore.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("no redis configured, state will not survive restarts")
		return blobstore.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := blobstore.NewRedisStore(client, cfg.Prefix)

	var err error
	for attempt := 1; attempt <= redisPingAttempts; attempt++ {
		if err = store.Ping(ctx); err == nil {
			logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
			return store, func() { store.Close() }, nil
		}
		logger.Warn("redis not ready",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", redisPingAttempts),
			zap.Error(err))
		select {
		case <-ctx.Done():
			store.Close()
			return nil, nil, ctx.Err()
		case <-time.After(redisPingDelay):
		}
	}

	store.Close()
	return nil, nil, err
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("companion backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
