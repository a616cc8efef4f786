package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the fixed first message of every transcript.
const DefaultSystemPrompt = `You are a caring, friendly assistant chatbot.
Always answer warmly.
Base your answers on the content of the uploaded PDF and give accurate, relevant information.
Even when the question is short, explain as concretely and in as much detail as you can, and add any extra information that would help the user.`

// ServerConfig configures the web front end.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	MaxUploadMB       int    `yaml:"max_upload_mb"`
	CookieName        string `yaml:"cookie_name"`
}

// ChatConfig configures the hosted chat model answering questions.
type ChatConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	BaseURL        string  `yaml:"base_url,omitempty"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	SystemPrompt   string  `yaml:"system_prompt"`
	AnswerLanguage string  `yaml:"answer_language,omitempty"`
	AnswerSuffix   string  `yaml:"answer_suffix,omitempty"`

	// APIKey is resolved from APIKeyEnv by Validate.
	APIKey string `yaml:"-"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	APIKey string `yaml:"-"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`

	APIKey string `yaml:"-"`
}

// EmbedCacheConfig enables the Redis embedding cache for remote embedders.
type EmbedCacheConfig struct {
	URL      string `yaml:"url"`
	TTLHours int    `yaml:"ttl_hours"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
	Cache  *EmbedCacheConfig     `yaml:"cache,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env,omitempty"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`

	APIKey string `yaml:"-"`
}

// PostgresConfig points at a Postgres database with the pgvector extension.
type PostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"`

	DSN string `yaml:"-"`
}

// RetrievalConfig controls how much context is passed to the chat model.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Chat        ChatConfig        `yaml:"chat"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// LoadEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server: ServerConfig{Addr: ":8080", SessionTTLMinutes: 120, MaxUploadMB: 32, CookieName: "pdfchat_session"},
		Chat: ChatConfig{
			Provider:     "openai",
			Model:        "gpt-4o",
			APIKeyEnv:    "OPENAI_API_KEY",
			TimeoutSecs:  60,
			SystemPrompt: DefaultSystemPrompt,
		},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{TopK: 4},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Log:         LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	d := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.SessionTTLMinutes <= 0 {
		cfg.Server.SessionTTLMinutes = d.Server.SessionTTLMinutes
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = d.Server.MaxUploadMB
	}
	if cfg.Server.CookieName == "" {
		cfg.Server.CookieName = d.Server.CookieName
	}

	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "openai"
	}
	if cfg.Chat.Model == "" {
		switch cfg.Chat.Provider {
		case "gemini":
			cfg.Chat.Model = "gemini-1.5-flash"
		default:
			cfg.Chat.Model = "gpt-4o"
		}
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = defaultKeyEnv(cfg.Chat.Provider)
	}
	if cfg.Chat.TimeoutSecs <= 0 {
		cfg.Chat.TimeoutSecs = d.Chat.TimeoutSecs
	}
	if strings.TrimSpace(cfg.Chat.SystemPrompt) == "" {
		cfg.Chat.SystemPrompt = DefaultSystemPrompt
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}
	if c := cfg.Embedder.Cache; c != nil && c.TTLHours <= 0 {
		c.TTLHours = 24 * 7
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "pdfchat"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "pgvector" {
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
		}
		if cfg.VectorStore.Postgres.DSNEnv == "" {
			cfg.VectorStore.Postgres.DSNEnv = "DATABASE_URL"
		}
	}

	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = d.Retrieval.TopK
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = d.Summarizer.MaxSentences
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func defaultKeyEnv(provider string) string {
	if provider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}
