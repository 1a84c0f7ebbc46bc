package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	"github.com/markdave123-py/contexta-ingest/internal/core/objectstore"
	"github.com/markdave123-py/contexta-ingest/internal/ingest"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Pipeline     *ingest.Pipeline
	Watchdog     *ingest.Watchdog
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider, %w", err)
	}

	pipeline := ingest.NewPipeline(dbClient, objClient, geminiEmbedder, ingest.BatchOptions{
		RetryAttempts:  cfg.EmbedRetryAttempts,
		RetryBase:      cfg.EmbedRetryBase,
		RateLimit:      cfg.EmbedRateLimit,
		HardTokenLimit: cfg.HardTokenLimit,
	})

	watchdog := ingest.NewWatchdog(dbClient, cfg.WatchdogInterval, cfg.ProcessingStaleAge)

	server := NewServer(cfg, dbClient, objClient, pipeline, geminiEmbedder, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Pipeline:     pipeline,
		Watchdog:     watchdog,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
