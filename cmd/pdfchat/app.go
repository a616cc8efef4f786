package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pdfchat/internal/chunker"
	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/cache"
	embgemini "pdfchat/internal/embedding/gemini"
	embopenai "pdfchat/internal/embedding/openai"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/extract"
	"pdfchat/internal/index"
	llmgemini "pdfchat/internal/llm/gemini"
	llmopenai "pdfchat/internal/llm/openai"
	"pdfchat/internal/qa"
	"pdfchat/internal/session"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/vectorstore/memory"
	"pdfchat/internal/vectorstore/pgvector"
	"pdfchat/internal/vectorstore/qdrant"
)

// loadConfig reads .env files and the YAML config, then resolves
// credentials. Any failure here is fatal for the command.
func loadConfig(g *globalFlags) (*config.AppConfig, error) {
	if err := config.LoadEnv(g.envFiles...); err != nil {
		return nil, err
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if g.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the assembled object graph shared by the front ends.
type app struct {
	indexer *index.Indexer
	qa      *qa.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) newManager(cfg *config.AppConfig, log *zap.Logger) *session.Manager {
	return session.NewManager(a.indexer, a.qa, session.ManagerConfig{
		TTL:          time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute,
		SystemPrompt: cfg.Chat.SystemPrompt,
	}, log)
}

func buildApp(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	model, err := newChatModel(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	newEmbedder, err := newEmbedderFactory(ctx, cfg, a, log)
	if err != nil {
		return nil, err
	}
	newStore, err := newStoreFactory(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	a.indexer = index.NewIndexer(extract.NewPDF(), ch, newEmbedder, newStore, sum,
		index.Options{SummaryMaxSentences: cfg.Summarizer.MaxSentences}, log)
	a.qa = qa.NewService(model, qa.Config{
		SystemPrompt:   cfg.Chat.SystemPrompt,
		AnswerLanguage: cfg.Chat.AnswerLanguage,
		TopK:           cfg.Retrieval.TopK,
	}, log)
	return a, nil
}

func newChatModel(ctx context.Context, cfg *config.AppConfig, a *app) (domain.ChatModel, error) {
	switch cfg.Chat.Provider {
	case "openai":
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:     cfg.Chat.BaseURL,
			APIKey:      cfg.Chat.APIKey,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			Timeout:     time.Duration(cfg.Chat.TimeoutSecs) * time.Second,
		})
	case "gemini":
		c, err := llmgemini.NewClient(ctx, cfg.Chat.APIKey, cfg.Chat.Model, cfg.Chat.Temperature)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.Chat.Provider)
	}
}

func newEmbedderFactory(ctx context.Context, cfg *config.AppConfig, a *app, log *zap.Logger) (index.EmbedderFactory, error) {
	var remote domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		return func(context.Context) (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil
	case "openai":
		o := cfg.Embedder.OpenAI
		c, err := embopenai.NewClient(embopenai.Config{
			BaseURL: o.BaseURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
			Timeout: time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		remote = c
	case "gemini":
		e, err := embgemini.New(ctx, cfg.Embedder.Gemini.APIKey, cfg.Embedder.Gemini.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = e.Close() })
		remote = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	if c := cfg.Embedder.Cache; c != nil {
		opt, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("embedding cache url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("embedding cache unreachable, continuing without hits", zap.Error(err))
		}
		remote = cache.New(remote, rdb, time.Duration(c.TTLHours)*time.Hour, log)
	}
	// Remote embedders hold no per-document state, so one instance is shared.
	return func(context.Context) (domain.Embedder, error) { return remote, nil }, nil
}

func newStoreFactory(ctx context.Context, cfg *config.AppConfig, a *app) (vectorstore.Factory, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.Factory, nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		return qdrant.Factory(qdrant.Config{
			URL:     q.URL,
			APIKey:  q.APIKey,
			Prefix:  q.CollectionPrefix,
			Timeout: time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		db, err := pgvector.Open(ctx, cfg.VectorStore.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db.Factory(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
