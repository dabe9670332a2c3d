// cmd/server/main.go
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/askbase-go/internal/api"
	"github.com/askbase-go/internal/config"
	"github.com/askbase-go/internal/data"
	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/rag"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		log = log.Level(level)
	}
	if cfg.OpenAI.APIKey == "" {
		log.Warn().Msg("no platform OpenAI API key configured; only bring-your-own-key projects will work")
	}

	ctx := context.Background()

	store := data.NewStore(cfg.Redis)
	if err := store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup; rate limiting will degrade to in-memory")
	}
	defer store.Close()

	sections, err := data.NewSectionStore(ctx, cfg.Milvus, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the section store")
	}
	defer sections.Close()

	upstream := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, log)
	retriever := rag.NewRetriever(upstream, sections, log)
	limiter := api.NewRateLimiter(store.Redis(), cfg.RateLimit.WindowSeconds, cfg.RateLimit.MaxRequests, log)

	server := api.NewServer(cfg, store, retriever, upstream, limiter, log)
	log.Info().Str("port", cfg.Server.Port).Msg("starting completion service")
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
