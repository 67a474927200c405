package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
	"github.com/kirillkom/studyforge/internal/core/usecase"
	rediscache "github.com/kirillkom/studyforge/internal/infrastructure/cache/redis"
	"github.com/kirillkom/studyforge/internal/infrastructure/chunking"
	"github.com/kirillkom/studyforge/internal/infrastructure/extractor/registry"
	"github.com/kirillkom/studyforge/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/studyforge/internal/infrastructure/payment/paystack"
	"github.com/kirillkom/studyforge/internal/infrastructure/queue/nats"
	"github.com/kirillkom/studyforge/internal/infrastructure/queue/rabbitmq"
	"github.com/kirillkom/studyforge/internal/infrastructure/repository/memory"
	"github.com/kirillkom/studyforge/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
	"github.com/kirillkom/studyforge/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/studyforge/internal/infrastructure/tokenizer/tiktoken"
)

type App struct {
	Config config.Config

	Queue      ports.RunQueue
	Runs       ports.RunStore
	Resilience *resilience.Executor

	Ingest     *usecase.IngestDocumentUseCase
	Reader     *usecase.DocumentReaderUseCase
	StudyPacks *usecase.StudyPackUseCase
	Pricing    *usecase.PricingEstimator
	Ledger     *usecase.CreditLedger
	Trigger    *usecase.TriggerGateway
	Pipeline   *usecase.GenerationPipeline
	Watchdog   *usecase.RunWatchdog
	Payments   *usecase.PaymentUseCase
	Identity   *usecase.IdentityUseCase

	closers []func()
}

type stores struct {
	documents ports.DocumentRepository
	packs     ports.StudyPackRepository
	artifacts ports.ArtifactStore
	users     ports.UserRepository
	credits   ports.CreditStore
	runs      ports.RunStore
	steps     ports.StepLog
}

type closableQueue interface {
	ports.RunQueue
	Close()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	st, err := app.openStores(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Runs = st.runs
	executor := resilience.NewExecutor(resilienceConfig(cfg.Resilience))
	app.Resilience = executor

	queue, err := openQueue(cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init run queue: %w", err)
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	tokenizer, err := tiktoken.New()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}

	rates := pricingRates(cfg.Pricing)
	if err := rates.Validate(); err != nil {
		app.Close()
		return nil, fmt.Errorf("pricing rates: %w", err)
	}

	namespace, err := uuid.Parse(cfg.IdentityNamespace)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("parse identity namespace: %w", err)
	}

	temperature := cfg.OllamaTemperature
	generator := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout,
		Temperature:        &temperature,
		NumCtx:             cfg.OllamaNumCtx,
		ResilienceExecutor: executor,
	})
	verifier := paystack.New(cfg.PaystackURL, cfg.PaystackSecretKey, paystack.Options{
		ResilienceExecutor: executor,
	})

	app.Ledger = usecase.NewCreditLedger(st.credits)
	app.Pricing = usecase.NewPricingEstimator(tokenizer, app.openTokenCache(ctx, cfg), rates)
	app.Ingest = usecase.NewIngestDocumentUseCase(st.documents, storage, registry.New(), cfg.MaxUploadBytes).
		WithStudyPacks(st.packs)
	app.Reader = usecase.NewDocumentReaderUseCase(st.documents, st.artifacts)
	app.StudyPacks = usecase.NewStudyPackUseCase(st.packs, st.documents)
	app.Trigger = usecase.NewTriggerGateway(st.documents, app.Ledger, app.Pricing, st.runs, queue)
	app.Payments = usecase.NewPaymentUseCase(verifier, app.Ledger, rates)
	app.Identity = usecase.NewIdentityUseCase(st.users, app.Ledger, namespace, domain.CreditsFromDecimal(cfg.InitialCredits))

	app.Pipeline = usecase.NewGenerationPipeline(
		st.documents,
		st.artifacts,
		app.Ledger,
		st.runs,
		st.steps,
		generator,
		usecase.PipelineOptions{
			SummaryChunker:      chunking.NewSplitter(cfg.SummaryChunkSize, cfg.SummaryChunkOverlap),
			ContextChunker:      chunking.NewSplitter(cfg.ContextChunkSize, cfg.ContextChunkOverlap),
			MaxContextRunes:     cfg.MaxContextRunes,
			MaxCondenseRounds:   cfg.MaxCondenseRounds,
			CondenseConcurrency: cfg.CondenseConcurrency,
			FlashCardCount:      cfg.FlashCardCount,
			MaxRunAttempts:      cfg.MaxRunAttempts,
			HeartbeatStaleAfter: cfg.HeartbeatStaleAfter,
			HeartbeatInterval:   cfg.HeartbeatInterval,
		},
	).WithRetrier(executor)

	app.Watchdog = usecase.NewRunWatchdog(st.runs, queue, app.Pipeline, usecase.WatchdogOptions{
		MaxRunDuration:      cfg.MaxRunDuration,
		RetryDelay:          cfg.RetryDelay,
		HeartbeatStaleAfter: cfg.HeartbeatStaleAfter,
		BatchSize:           cfg.RecoverBatchSize,
	})

	slog.Info("bootstrap_ready",
		"store_driver", cfg.StoreDriver,
		"queue_driver", cfg.QueueDriver,
		"token_cache", cfg.RedisAddr != "",
		"generation_model", cfg.OllamaGenModel,
	)
	return app, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := memory.New()
		return stores{
			documents: mem,
			packs:     mem,
			artifacts: mem,
			users:     mem,
			credits:   mem,
			runs:      mem,
			steps:     mem,
		}, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return stores{}, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return stores{}, fmt.Errorf("ensure schema: %w", err)
	}

	ledger := postgres.NewLedgerRepository(db)
	runs := postgres.NewRunRepository(db)
	return stores{
		documents: postgres.NewDocumentRepository(db),
		packs:     postgres.NewStudyPackRepository(db),
		artifacts: postgres.NewArtifactRepository(db),
		users:     ledger,
		credits:   ledger,
		runs:      runs,
		steps:     runs,
	}, nil
}

func openQueue(cfg config.Config, executor *resilience.Executor) (closableQueue, error) {
	if cfg.QueueDriver == config.QueueDriverRabbitMQ {
		return rabbitmq.New(cfg.RabbitMQURL, cfg.RabbitMQQueue, rabbitmq.Options{
			Concurrency:        cfg.WorkerConcurrency,
			ResilienceExecutor: executor,
		})
	}
	return nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Concurrency:        cfg.WorkerConcurrency,
		ResilienceExecutor: executor,
	})
}

// openTokenCache connects the optional Redis cache. Pricing works without it, so a
// connection failure only disables memoisation.
func (a *App) openTokenCache(ctx context.Context, cfg config.Config) ports.TokenCountCache {
	if cfg.RedisAddr == "" {
		return nil
	}
	cache, err := rediscache.New(ctx, rediscache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TokenCacheTTL,
	})
	if err != nil {
		slog.Warn("token_cache_disabled", "addr", cfg.RedisAddr, "error", err)
		return nil
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	return cache
}

func pricingRates(p config.Pricing) usecase.PricingRates {
	return usecase.PricingRates{
		USDPerToken: map[domain.ArtifactKind]decimal.Decimal{
			domain.KindSummary:    p.SummaryUSDPerToken,
			domain.KindMindMap:    p.MindMapUSDPerToken,
			domain.KindFlashCards: p.FlashCardsUSDPerToken,
		},
		LocalPerUSD:     p.LocalPerUSD,
		CreditsPerLocal: p.CreditsPerLocal,
	}
}

func resilienceConfig(r config.Resilience) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        r.RetryMaxAttempts,
		RetryInitialBackoff:     r.RetryInitialBackoff,
		RetryMaxBackoff:         r.RetryMaxBackoff,
		RetryMultiplier:         r.RetryMultiplier,
		RetryJitter:             r.RetryJitter,
		BreakerEnabled:          r.BreakerEnabled,
		BreakerMinRequests:      uint32(max(r.BreakerMinRequests, 0)),
		BreakerFailureRatio:     r.BreakerFailureRatio,
		BreakerOpenTimeout:      r.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(r.BreakerHalfOpenMaxCalls, 0)),
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
