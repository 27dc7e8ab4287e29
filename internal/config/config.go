// Package config manages the kitchencompanion configuration file
// (~/.config/kitchencompanion/config.toml) and its environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds every externally supplied setting of the assistant.
type Config struct {
	Knowledge  KnowledgeConfig  `toml:"knowledge"`
	Classifier ClassifierConfig `toml:"classifier"`
	LLM        LLMConfig        `toml:"llm"`
	Keys       KeysConfig       `toml:"keys"`
	Ollama     OllamaConfig     `toml:"ollama"`
	Geo        GeoConfig        `toml:"geo"`
	Turn       TurnConfig       `toml:"turn"`
	Worker     WorkerConfig     `toml:"worker"`
}

// KnowledgeConfig locates the cookbook knowledge store artifact.
// An empty Path means "discover it" from the usual locations.
type KnowledgeConfig struct {
	Path  string `toml:"path"`
	TopK  int    `toml:"top_k" validate:"gte=1,lte=20"`
	Watch bool   `toml:"watch"`
}

// ClassifierConfig controls which utterances trigger a cookbook lookup.
type ClassifierConfig struct {
	MinLength  int      `toml:"min_length" validate:"gte=0"`
	Vocabulary []string `toml:"vocabulary"`
}

// LLMConfig selects the generation and embedding providers.
type LLMConfig struct {
	Provider    string  `toml:"provider" validate:"oneof=openai claude gemini ollama"`
	Model       string  `toml:"model"`
	Embedder    string  `toml:"embedder" validate:"omitempty,oneof=openai ollama none"`
	EmbedModel  string  `toml:"embed_model"`
	Temperature float64 `toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `toml:"max_tokens" validate:"gte=1"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
	Gemini    string `toml:"gemini"`
}

type OllamaConfig struct {
	Host            string `toml:"host" validate:"omitempty,url"`
	EmbedModel      string `toml:"embed_model"`
	CompletionModel string `toml:"completion_model"`
}

// GeoConfig configures the location and grocery search services.
type GeoConfig struct {
	DefaultRadiusM int      `toml:"default_radius_m" validate:"gte=100,lte=50000"`
	ResultCap      int      `toml:"result_cap" validate:"gte=1,lte=50"`
	NominatimURL   string   `toml:"nominatim_url" validate:"url"`
	OverpassURL    string   `toml:"overpass_url" validate:"url"`
	IPAPIURL       string   `toml:"ipapi_url" validate:"url"`
	UserAgent      string   `toml:"user_agent" validate:"required"`
	GeocodeRPS     float64  `toml:"geocode_rps" validate:"gt=0"`
	CacheSize      int      `toml:"cache_size" validate:"gte=1"`
	CacheTTL       Duration `toml:"cache_ttl"`
	Timeout        Duration `toml:"timeout"`
}

// TurnConfig bounds the per-turn retrieval work.
type TurnConfig struct {
	RetrievalTimeout Duration `toml:"retrieval_timeout"`
	NotesMaxTokens   int      `toml:"notes_max_tokens" validate:"gte=0"`
}

// WorkerConfig sizes the pool that runs blocking work off the session loop.
type WorkerConfig struct {
	Size int `toml:"size" validate:"gte=1,lte=64"`
}

// Duration is a time.Duration that reads and writes as a string ("8s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultVocabulary is the cooking vocabulary that marks an utterance as
// worth a cookbook lookup.
var DefaultVocabulary = []string{
	"cook", "recipe", "ingredient", "salt", "fat", "acid", "heat",
	"temperature", "bake", "boil", "fry", "roast", "season", "technique",
	"flavor", "texture", "prepare", "dish", "meal", "food", "taste",
	"spice", "herb", "sauce", "vegetable", "meat", "fish", "pasta",
	"rice", "bread", "knife", "cut", "chop", "blend", "mix", "stir",
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Knowledge: KnowledgeConfig{
			TopK:  3,
			Watch: true,
		},
		Classifier: ClassifierConfig{
			MinLength:  10,
			Vocabulary: append([]string(nil), DefaultVocabulary...),
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Embedder:    "openai",
			Temperature: 0,
			MaxTokens:   1024,
		},
		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			EmbedModel:      "nomic-embed-text",
			CompletionModel: "llama3.2",
		},
		Geo: GeoConfig{
			DefaultRadiusM: 3000,
			ResultCap:      5,
			NominatimURL:   "https://nominatim.openstreetmap.org",
			OverpassURL:    "https://overpass-api.de/api/interpreter",
			IPAPIURL:       "https://ipapi.co/json/",
			UserAgent:      "kitchencompanion-geo-001",
			GeocodeRPS:     1,
			CacheSize:      256,
			CacheTTL:       Duration{24 * time.Hour},
			Timeout:        Duration{15 * time.Second},
		},
		Turn: TurnConfig{
			RetrievalTimeout: Duration{8 * time.Second},
			NotesMaxTokens:   600,
		},
		Worker: WorkerConfig{
			Size: 4,
		},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kitchencompanion", "config.toml"), nil
}

// Load reads the config file at path (the default location when path is
// empty), applies defaults for missing values, env overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := Path()
		if err != nil {
			applyEnv(&cfg)
			return cfg, Validate(cfg)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: load %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: stat %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

// applyEnv lets environment variables override keys and the store path.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Keys.Gemini = v
	}
	if v := os.Getenv("KITCHEN_VECTORSTORE_PATH"); v != "" {
		cfg.Knowledge.Path = v
	}
}

var validate = validator.New()

// Validate checks field ranges and enumerations.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// APIKey returns the configured API key for the named provider.
func (c Config) APIKey(provider string) string {
	switch provider {
	case "claude":
		return c.Keys.Anthropic
	case "openai":
		return c.Keys.OpenAI
	case "gemini":
		return c.Keys.Gemini
	default:
		return ""
	}
}
