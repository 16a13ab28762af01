package config

import (
	"fmt"
)

type Config struct {
	Server  ServerConfig
	Qdrant  QdrantConfig
	OpenAI  OpenAIConfig
	Tools   ToolsConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type QdrantConfig struct {
	BaseURL string
	APIKey  string
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type ToolsConfig struct {
	Tesseract   string
	OCRLanguage string
	Pdftoppm    string
	RasterDPI   int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Qdrant: QdrantConfig{
			BaseURL: "http://localhost:6333",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Tools: ToolsConfig{
			Tesseract:   "tesseract",
			OCRLanguage: "eng",
			Pdftoppm:    "pdftoppm",
			RasterDPI:   150,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/docsift/config.json, then applies DOCSIFT_* environment
// variable overrides. Secrets (API keys) are never stored in the file and
// come from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable DOCSIFT_OPENAI_API_KEY")
	}

	return cfg, nil
}
