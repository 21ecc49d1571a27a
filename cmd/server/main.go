package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dataset-service/internal/blob"
	"dataset-service/internal/config"
	"dataset-service/internal/crypto"
	"dataset-service/internal/handler"
	"dataset-service/internal/ledger"
	"dataset-service/internal/llm"
	"dataset-service/internal/payment"
	"dataset-service/internal/qa"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"
	"dataset-service/internal/server"
	"dataset-service/internal/service"
	"dataset-service/internal/transcribe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Application failed", zap.Error(err))
	}
	logger.Info("Application stopped.")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(db, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewStore(db, logger)

	var source queue.Source
	switch cfg.Queue.Type {
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		source = queue.NewRedisQueue(client, cfg.Queue.Redis.Prefix, cfg.Queue.StaleAfter, logger)
	default:
		source = queue.NewSQLQueue(db, cfg.Queue.StaleAfter, logger)
	}
	logger.Info("Queue initialized", zap.String("type", cfg.Queue.Type))

	providers := llm.NewRegistry(cfg.Providers, logger)
	defer providers.Close()

	chain := make([]llm.Provider, 0, len(cfg.Generation.Providers))
	for _, name := range cfg.Generation.Providers {
		p, err := providers.Get(name)
		if err != nil {
			logger.Warn("Generation provider unavailable", zap.String("provider", name), zap.Error(err))
			continue
		}
		chain = append(chain, p)
	}
	generator, err := llm.NewMultiProvider(chain, cfg.Generation.MaxFailures, logger)
	if err != nil {
		return fmt.Errorf("generation providers: %w", err)
	}
	synth := qa.NewSynthesizer(generator, cfg.Generation.Model, cfg.Generation.Limits, logger)

	keys, err := crypto.NewKeyManager(cfg.Crypto.MasterKey)
	if err != nil {
		return fmt.Errorf("key manager: %w", err)
	}
	logger.Info("KeyManager initialized successfully")

	blobs, err := blob.NewMux(ctx, cfg.GCP.Blob, logger)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	defer blobs.Close()

	var transcriber transcribe.Transcriber
	if cfg.GCP.EnableSpeech {
		speech, err := transcribe.NewSpeech(ctx, cfg.GCP.Speech, logger)
		if err != nil {
			return fmt.Errorf("speech: %w", err)
		}
		defer speech.Close()
		transcriber = speech
	} else {
		logger.Warn("Speech-to-Text disabled, video contents will fail")
	}

	ledgerService := ledger.NewService(store, cfg.Ledger, logger)
	billing := payment.NewBilling(payment.NewClient(cfg.Payment), ledgerService, logger)

	fineTuner := service.NewFineTuner(store, source, providers, keys, ledgerService, cfg.FineTuning, logger)
	orchestrator := service.NewOrchestrator(store, source, synth, fineTuner,
		cfg.Generation.GenerationConfig, cfg.Retry, workerID(), logger)
	contents := service.NewContentWorker(store, source, blobs, transcriber, logger)

	jobs := queue.NewRegistry()
	service.RegisterHandlers(jobs, contents, orchestrator, fineTuner)
	worker := queue.NewWorker(source, jobs, cfg.Worker, logger)

	if cfg.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Deps{
		Store:      store,
		Enqueuer:   service.NewEnqueuer(source),
		FineTuner:  fineTuner,
		Ledger:     ledgerService,
		Billing:    billing,
		Keys:       keys,
		Providers:  providers,
		AuthSecret: []byte(cfg.Server.AuthSecret),
		Logger:     logger,
	})
	srv := server.NewServer(cfg.Server.Port, router, cfg.Server.ShutdownTimeout, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

func newLogger(mode, level string) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if mode == "production" {
		zcfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

// workerID names this process in dataset leases.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
