package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fmt"

	"github.com/joho/godotenv"
	"github.com/nidhogg/overseer/internal/api"
	"github.com/nidhogg/overseer/internal/catalog"
	"github.com/nidhogg/overseer/internal/config"
	"github.com/nidhogg/overseer/internal/embedding"
	"github.com/nidhogg/overseer/internal/events"
	"github.com/nidhogg/overseer/internal/graph"
	"github.com/nidhogg/overseer/internal/monitor"
	"github.com/nidhogg/overseer/internal/notify"
	"github.com/nidhogg/overseer/internal/search"
	"github.com/nidhogg/overseer/internal/store"
	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/vectorstore"
	"github.com/nidhogg/overseer/internal/workflow"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Overseer...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/overseer.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	if cfg.Server.LogLevel != "" {
		if lvl, lerr := zapcore.ParseLevel(cfg.Server.LogLevel); lerr == nil {
			zcfg := zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
			if rebuilt, berr := zcfg.Build(); berr == nil {
				logger = rebuilt
			}
		} else {
			logger.Warn("unknown log level", zap.String("level", cfg.Server.LogLevel))
		}
	}

	// Task store: PostgreSQL when configured, in-memory otherwise.
	var st task.Store
	var pg *store.Store
	if cfg.Database.Postgres.DSN != "" {
		pg, err = store.New(cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(err))
		}
		if mErr := pg.Migrate(context.Background(), "migrations"); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		st = pg
	} else {
		logger.Warn("no postgres dsn configured, tasks will not survive restarts")
		st = store.NewMemory()
	}

	// Step catalog: builtins overlaid with JSON definitions on disk.
	steps := catalog.Builtin()
	if cfg.Workflow.CatalogDir != "" {
		extra, lErr := catalog.LoadDir(cfg.Workflow.CatalogDir)
		if lErr != nil {
			logger.Fatal("failed to load catalog dir", zap.String("dir", cfg.Workflow.CatalogDir), zap.Error(lErr))
		}
		steps = catalog.Merge(steps, extra)
	}
	if err := catalog.Seed(context.Background(), st, steps); err != nil {
		logger.Fatal("failed to seed step catalog", zap.Error(err))
	}
	logger.Info("Step catalog seeded", zap.Int("steps", len(steps)))

	// Event stream over Redis. Optional: a nil sink just disables
	// publishing, notifications and the stale monitor.
	var stream *events.Stream
	var sink workflow.EventSink
	if cfg.Database.Redis.URL != "" {
		s, sErr := events.New(cfg.Database.Redis.URL, logger)
		if sErr != nil {
			logger.Warn("Redis unavailable, running without events", zap.Error(sErr))
		} else {
			stream = s
			sink = s
		}
	}

	// Handoff graph in Neo4j. Also optional.
	var flow *graph.Flow
	var recorder workflow.FlowRecorder
	var flowReader api.FlowReader
	if cfg.Database.Neo4j.URI != "" {
		f, gErr := graph.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = f.Ping(context.Background())
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without flow graph", zap.Error(gErr))
		} else {
			flow = f
			recorder = f
			flowReader = f
		}
	}

	// Guidance search: embeddings plus Qdrant. Optional as a pair.
	var vec *vectorstore.Client
	var searcher api.Searcher
	embedder, err := embedding.FromConfig(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Fatal("bad embedding config", zap.Error(err))
	}
	if embedder != nil && cfg.Database.Qdrant.Host != "" {
		vc, vErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if vErr != nil {
			logger.Warn("Qdrant unavailable, guidance search disabled", zap.Error(vErr))
		} else {
			vec = vc
			index := search.New(embedder, vc, cfg.Database.Qdrant.Collection, logger)
			if iErr := index.Init(context.Background()); iErr != nil {
				logger.Warn("search init failed, guidance search disabled", zap.Error(iErr))
			} else {
				if n, xErr := index.IndexSteps(context.Background(), steps); xErr != nil {
					logger.Warn("catalog indexing failed", zap.Error(xErr))
				} else {
					logger.Info("Guidance catalog indexed", zap.Int("steps", n))
				}
				searcher = index
			}
		}
	}

	engine := workflow.New(st, sink, recorder,
		workflow.CompletionPolicy(cfg.Workflow.CompletionPolicy), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chat notifications ride the event stream.
	broadcaster := notify.NewBroadcaster(logger)
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		broadcaster.Register(notify.NewSlack(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		d, dErr := notify.NewDiscord(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if dErr != nil {
			logger.Warn("Discord session failed", zap.Error(dErr))
		} else {
			broadcaster.Register(d)
		}
	}
	if stream != nil && len(broadcaster.Platforms()) > 0 {
		go broadcaster.Watch(ctx, stream.Subscribe(ctx))
		logger.Info("Notification fanout started", zap.Strings("platforms", broadcaster.Platforms()))
	}

	// Stale task monitor needs somewhere to publish its flags.
	var sweeper api.Sweeper
	if cfg.Workflow.StaleAfterMinutes > 0 && sink != nil {
		mon := monitor.New(st, sink, time.Duration(cfg.Workflow.StaleAfterMinutes)*time.Minute, logger)
		go mon.Run(ctx, 5*time.Minute)
		sweeper = mon
		logger.Info("Stale task monitor started", zap.Int("after_minutes", cfg.Workflow.StaleAfterMinutes))
	}

	var cache api.ExecutionCache
	if stream != nil {
		cache = stream.ExecutionCache(5 * time.Minute)
	}

	// Build HTTP handler
	handler := api.NewHandler(engine, st, cache, searcher, flowReader, sweeper, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Overseer listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Overseer...")
	cancel()
	shutdownCtx := context.Background()
	srv.Shutdown(shutdownCtx)
	broadcaster.Close()
	if stream != nil {
		stream.Close()
	}
	if flow != nil {
		flow.Close(shutdownCtx)
	}
	if vec != nil {
		vec.Close()
	}
	if pg != nil {
		pg.Close()
	}
}
