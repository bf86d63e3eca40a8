package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rx3lixir/bijoy/internal/composer"
	"github.com/rx3lixir/bijoy/internal/config"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/kvstore"
	"github.com/rx3lixir/bijoy/internal/live"
	"github.com/rx3lixir/bijoy/internal/media"
	"github.com/rx3lixir/bijoy/internal/metrics"
	"github.com/rx3lixir/bijoy/internal/server"
	"github.com/rx3lixir/bijoy/internal/storage/postgres"
	"github.com/rx3lixir/bijoy/internal/storage/s3"
	"github.com/rx3lixir/bijoy/internal/websocket"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Error loading .env: %v\n", err)
		os.Exit(1)
	}

	// Initializing and validating config
	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		fmt.Printf("Error getting config file: %v\n", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initializing logger
	log := logger.Must(logger.New(logger.Config{
		Env:   c.GeneralParams.Env,
		Level: c.GeneralParams.LogLevel,
	}))

	log.Info(
		"config loaded successfully",
		"env", c.GeneralParams.Env,
		"http_server_address", c.HttpServerParams.GetAddress(),
		"storage", c.StorageParams.Driver,
		"media", c.MediaParams.Driver,
	)

	if err := run(c, log); err != nil {
		log.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(c *config.Config, log *logger.Logger) error {
	// Global context with cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, closeKV, err := openKV(ctx, c, log.Component("storage"))
	if err != nil {
		return err
	}
	defer closeKV()

	// Conversation state, restored before anything can mutate it
	store := conversation.NewStore(conversation.StoreConfig{
		SelfID: c.GeneralParams.SelfID,
		Log:    log.Component("conversation"),
	})
	archive := conversation.NewArchive(store, kv, log.Component("archive"))
	defer archive.Close()

	if _, err := archive.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore conversations: %w", err)
	}

	archiveCtx, stopArchive := context.WithCancel(ctx)
	archiveDone := make(chan struct{})
	go func() {
		defer close(archiveDone)
		archive.Run(archiveCtx)
	}()

	mediaStore, err := openMedia(ctx, c, log.Component("media"))
	if err != nil {
		stopArchive()
		<-archiveDone
		return err
	}

	maxSize, err := c.MediaParams.MaxAttachmentBytes()
	if err != nil {
		stopArchive()
		<-archiveDone
		return err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		stopArchive()
		<-archiveDone
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Websocket hubs double as the audio device bridge
	wsManager := websocket.NewManager(store, websocket.Config{
		MessageRate:    c.WSParams.MessageRate,
		MessageBurst:   c.WSParams.MessageBurst,
		OriginPatterns: c.WSParams.OriginPatterns,
		Log:            log.Component("websocket"),
	})

	comp := composer.New(composer.Config{
		Store:             store,
		Media:             mediaStore,
		MaxAttachmentSize: maxSize,
		Log:               log.Component("composer"),
	})
	recorders := composer.NewRecorders(comp, wsManager.Microphone, log.Component("recorder"))

	calls := live.NewCalls(live.Config{
		Dialer: &live.WebsocketDialer{
			Endpoint: c.LiveParams.Endpoint,
			APIKey:   c.LiveParams.APIKey,
		},
		Model:        c.LiveParams.Model,
		Voice:        c.LiveParams.Voice,
		FrameSize:    c.LiveParams.FrameSize,
		FailureGrace: c.LiveParams.FailureGrace,
		Log:          log.Component("live"),
	}, wsManager.Host)

	router := server.NewRouter(server.RouterConfig{
		ConversationHandler: conversation.NewHandler(store, log.Component("http")),
		ComposerHandler:     composer.NewHandler(comp, recorders, log.Component("http"), c.HttpServerParams.RequestTimeout),
		CallHandler:         live.NewHandler(calls, store, log.Component("http"), c.HttpServerParams.RequestTimeout),
		WSHandler:           websocket.NewHandler(wsManager, log.Component("websocket")),
		Metrics:             metrics.Handler(reg),
		Log:                 log.Component("http"),
	})

	// Creates HTTP server
	httpServer := server.New(c.HttpServerParams.GetAddress(), router, log.Component("http"))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we recieve a signal or error
	var serveErr error
	select {
	case serveErr = <-serverErrors:
		if serveErr != nil {
			log.Error("server error", "error", serveErr)
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Audio first: recordings in flight are discarded, calls are ended
	recorders.DiscardAll(shutdownCtx)
	calls.EndAll()
	wsManager.Shutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopArchive()
	<-archiveDone

	log.Info("shutdown complete")
	return serveErr
}

// openKV selects the blob store the archive persists conversations into
func openKV(ctx context.Context, c *config.Config, log *slog.Logger) (kvstore.Store, func(), error) {
	p := c.StorageParams

	switch p.Driver {
	case "pebble":
		kv, err := kvstore.OpenPebble(p.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("pebble store opened", "path", p.Path)
		return kv, closer(kv, log), nil

	case "redis":
		kv, err := kvstore.ConnectRedis(ctx, p.RedisAddr, p.Namespace)
		if err != nil {
			return nil, nil, err
		}
		log.Info("redis store connected", "addr", p.RedisAddr)
		return kv, closer(kv, log), nil

	case "postgres":
		pool, err := postgres.Connect(ctx, p, log)
		if err != nil {
			return nil, nil, err
		}
		kv := kvstore.NewPostgresStore(pool)
		if err := kv.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return kv, pool.Close, nil

	default:
		log.Warn("using in-memory storage, conversations are lost on restart")
		kv := kvstore.NewMemoryStore()
		return kv, closer(kv, log), nil
	}
}

func closer(kv kvstore.Store, log *slog.Logger) func() {
	return func() {
		if err := kv.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}
}

// openMedia selects where attachment bytes live
func openMedia(ctx context.Context, c *config.Config, log *slog.Logger) (media.Store, error) {
	if c.MediaParams.Driver != "s3" {
		return media.NewInlineStore(), nil
	}

	client, err := s3.Connect(ctx, c.S3Params, log)
	if err != nil {
		return nil, err
	}
	return media.NewS3Store(client, c.S3Params.BucketName, c.MediaParams.PresignExpiry, log), nil
}
