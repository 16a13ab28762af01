package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DOCSIFT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DOCSIFT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "qdrant.base_url", typ: kString, env: "DOCSIFT_QDRANT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Qdrant.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Qdrant.BaseURL },
	},
	{
		key: "qdrant.api_key", typ: kString, env: "DOCSIFT_QDRANT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Qdrant.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Qdrant.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "DOCSIFT_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.api_key", typ: kString, env: "DOCSIFT_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.chat_model", typ: kString, env: "DOCSIFT_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.embed_model", typ: kString, env: "DOCSIFT_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "tools.tesseract", typ: kString, env: "DOCSIFT_TESSERACT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Tools.Tesseract = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.Tesseract },
	},
	{
		key: "tools.ocr_language", typ: kString, env: "DOCSIFT_OCR_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Tools.OCRLanguage = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.OCRLanguage },
	},
	{
		key: "tools.pdftoppm", typ: kString, env: "DOCSIFT_PDFTOPPM_PATH",
		apply:   func(cfg *Config, v any) { cfg.Tools.Pdftoppm = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.Pdftoppm },
	},
	{
		key: "tools.raster_dpi", typ: kInt, env: "DOCSIFT_RASTER_DPI",
		apply:   func(cfg *Config, v any) { cfg.Tools.RasterDPI = v.(int) },
		extract: func(cfg Config) any { return cfg.Tools.RasterDPI },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOCSIFT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DOCSIFT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
