package main

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	firebase "firebase.google.com/go/v4"
	_ "github.com/joho/godotenv/autoload"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-dispatch-service/dispatchservice"
	"github.com/tinywideclouds/go-dispatch-service/dispatchservice/config"
	"github.com/tinywideclouds/go-dispatch-service/internal/pipeline"
	"github.com/tinywideclouds/go-dispatch-service/internal/platform/credentials"
	"github.com/tinywideclouds/go-dispatch-service/internal/platform/events"
	"github.com/tinywideclouds/go-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-dispatch-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-dispatch-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-dispatch-service/internal/storage/memory"
	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
)

//go:embed local.yaml
var configFile []byte

// stores bundles the store interfaces the service depends on.
type stores interface {
	dispatch.UserStore
	dispatch.TokenOwnerStore
	dispatch.NotificationWriter
	dispatch.InboxReader
}

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-dispatch-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	// --- Stores ---
	var store stores
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			os.Exit(1)
		}
		defer fsClient.Close()
		store = fsStore.NewFirestoreStore(fsClient)
	}
	logger.Info("Store initialized", "type", cfg.Store)

	// --- Push Sender ---
	sender, err := newSender(ctx, cfg, clientOpts, logger)
	if err != nil {
		logger.Error("Push sender failed", "err", err)
		os.Exit(1)
	}

	// --- Events (optional) ---
	var pipelineOpts []pipeline.Option
	var publisher *events.PubsubPublisher
	if cfg.EventsTopicID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()
		if err := events.EnsureTopic(ctx, psClient, cfg.ProjectID, cfg.EventsTopicID); err != nil {
			logger.Error("Events topic unavailable", "err", err)
			os.Exit(1)
		}
		publisher = events.NewPubsubPublisher(psClient, cfg.EventsTopicID, logger)
		pipelineOpts = append(pipelineOpts, pipeline.WithEvents(publisher))
		logger.Info("Dispatch events enabled", "topic", cfg.EventsTopicID)
	}

	// --- Auth (inbox only) ---
	var authMiddleware func(http.Handler) http.Handler
	if cfg.IdentityServiceURL != "" {
		jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.IdentityServiceURL, middleware.RSA256, logger)
		if err != nil {
			logger.Error("JWT config discovery failed", "err", err)
			os.Exit(1)
		}
		authMiddleware, err = middleware.NewJWKSAuthMiddleware(jwksURL, logger)
		if err != nil {
			logger.Error("JWKS auth middleware failed", "err", err)
			os.Exit(1)
		}
	}

	// --- Service ---
	p := pipeline.New(store, store, store, sender, logger, pipelineOpts...)
	service := dispatchservice.New(cfg, p, store, authMiddleware, logger)
	if publisher != nil {
		service.OnShutdown(publisher.Close)
	}

	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			stop()
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "err", err)
	}
}

func newSender(ctx context.Context, cfg *config.Config, clientOpts []option.ClientOption, logger *slog.Logger) (dispatch.Sender, error) {
	if cfg.Push.Transport == config.TransportSDK {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
		if err != nil {
			return nil, err
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Push sender initialized", "transport", "sdk")
		return fcm.NewSDKSender(fcmMessaging, logger), nil
	}

	tokenSource, credProject, err := credentials.NewGoogleTokenSource(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	if credProject != "" && credProject != cfg.ProjectID {
		logger.Warn("Credentials belong to a different project", "credentials_project", credProject, "project_id", cfg.ProjectID)
	}

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis token cache...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		tokenSource = cache.NewCachedTokenSource(tokenSource, redisClient, cfg.Redis.Key, logger)
	}

	endpoint := cfg.Push.Endpoint
	if endpoint == "" {
		endpoint = fcm.EndpointForProject(cfg.ProjectID)
	}
	logger.Info("Push sender initialized", "transport", "http", "endpoint", endpoint, "timeout", cfg.Push.Timeout)
	return fcm.NewHTTPSender(credentials.NewProvider(tokenSource), endpoint, cfg.Push.Timeout, logger), nil
}
