// Package config loads codegraph settings from .codegraph/config.yaml,
// CODEGRAPH_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/codegraph-mcp/internal/embedder"
	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/searcher"
	"github.com/dshills/codegraph-mcp/internal/storage"
	"github.com/dshills/codegraph-mcp/internal/watcher"
)

// FileName is the config file inside the project's .codegraph directory
const FileName = "config.yaml"

// EnvPrefix prefixes every environment variable, e.g. CODEGRAPH_SEARCH_TOP_K
const EnvPrefix = "CODEGRAPH"

// Config represents the structure of the configuration file
type Config struct {
	Index    IndexConfig    `mapstructure:"index"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Search   SearchConfig   `mapstructure:"search"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type IndexConfig struct {
	MaxFileSize int64    `mapstructure:"max_file_size"`
	Workers     int      `mapstructure:"workers"`
	Ignore      []string `mapstructure:"ignore"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type SearchConfig struct {
	SemanticWeight   float64 `mapstructure:"semantic_weight"`
	StructuralWeight float64 `mapstructure:"structural_weight"`
	TopK             int     `mapstructure:"top_k"`
}

type EmbedderConfig struct {
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	Endpoint  string        `mapstructure:"endpoint"`
	Model     string        `mapstructure:"model"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Index: IndexConfig{
			MaxFileSize: indexer.DefaultMaxFileSize,
			Workers:     0,
			Ignore:      []string{},
		},
		Watch: WatchConfig{Debounce: watcher.DefaultDebounce},
		Search: SearchConfig{
			SemanticWeight:   searcher.DefaultSemanticWeight,
			StructuralWeight: searcher.DefaultStructuralWeight,
			TopK:             searcher.DefaultLimit,
		},
		Embedder: EmbedderConfig{
			Provider:  "",
			CacheTTL:  embedder.DefaultCacheTTL,
			CacheSize: embedder.DefaultCacheSize,
			RateLimit: embedder.DefaultRateLimit,
		},
		Storage: StorageConfig{Backend: storage.BackendJSON},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// flagKeys maps config keys to the command-line flags that override them
var flagKeys = map[string]string{
	"index.workers":       "workers",
	"watch.debounce":      "debounce",
	"search.top_k":        "top-k",
	"embedder.provider":   "provider",
	"storage.backend":     "backend",
	"log.level":           "log-level",
	"log.format":          "log-format",
	"metrics.addr":        "metrics-addr",
	"index.max_file_size": "max-file-size",
}

// Path returns the default config file location for a project root
func Path(root string) string {
	return filepath.Join(root, storage.DirName, FileName)
}

// Load resolves configuration for root. Precedence, highest first: flags
// that were set explicitly, CODEGRAPH_* environment variables, the config
// file, defaults. An explicit configFile must exist; the default
// .codegraph/config.yaml is optional.
func Load(root, configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := configFile
	if path == "" {
		path = Path(root)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.Index.Ignore == nil {
		cfg.Index.Ignore = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("index.max_file_size", d.Index.MaxFileSize)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("index.ignore", d.Index.Ignore)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("search.semantic_weight", d.Search.SemanticWeight)
	v.SetDefault("search.structural_weight", d.Search.StructuralWeight)
	v.SetDefault("search.top_k", d.Search.TopK)
	v.SetDefault("embedder.provider", d.Embedder.Provider)
	v.SetDefault("embedder.api_key", d.Embedder.APIKey)
	v.SetDefault("embedder.endpoint", d.Embedder.Endpoint)
	v.SetDefault("embedder.model", d.Embedder.Model)
	v.SetDefault("embedder.cache_ttl", d.Embedder.CacheTTL)
	v.SetDefault("embedder.cache_size", d.Embedder.CacheSize)
	v.SetDefault("embedder.rate_limit", d.Embedder.RateLimit)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	var errs []error
	if c.Index.MaxFileSize < 0 {
		errs = append(errs, errors.New("index.max_file_size must be >= 0"))
	}
	if c.Index.Workers < 0 {
		errs = append(errs, errors.New("index.workers must be >= 0"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must be >= 0"))
	}
	if c.Search.SemanticWeight < 0 || c.Search.StructuralWeight < 0 {
		errs = append(errs, errors.New("search weights must be >= 0"))
	}
	if c.Search.SemanticWeight+c.Search.StructuralWeight == 0 {
		errs = append(errs, errors.New("search weights cannot both be 0"))
	}
	if c.Search.TopK < 0 || c.Search.TopK > searcher.MaxLimit {
		errs = append(errs, fmt.Errorf("search.top_k must be between 0 and %d", searcher.MaxLimit))
	}
	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendJSON, storage.BackendSQLite, indexer.BackendNone:
	default:
		errs = append(errs, fmt.Errorf("%w: %s", storage.ErrUnknownBackend, c.Storage.Backend))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", s)
	}
	return level, nil
}

// IndexerConfig builds the indexer configuration for root
func (c *Config) IndexerConfig(root string) indexer.Config {
	return indexer.Config{
		Root:        root,
		Workers:     c.Index.Workers,
		MaxFileSize: c.Index.MaxFileSize,
		Ignore:      c.Index.Ignore,
		Debounce:    c.Watch.Debounce,
		Weights: searcher.Weights{
			Semantic:   c.Search.SemanticWeight,
			Structural: c.Search.StructuralWeight,
		},
		DefaultTopK:    c.Search.TopK,
		StorageBackend: c.Storage.Backend,
		CacheSize:      c.Embedder.CacheSize,
		CacheTTL:       c.Embedder.CacheTTL,
	}
}

// EmbedderConfig builds the embedding provider configuration
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedder.Provider,
		APIKey:    c.Embedder.APIKey,
		Endpoint:  c.Embedder.Endpoint,
		Model:     c.Embedder.Model,
		RateLimit: c.Embedder.RateLimit,
	}
}

// document is the on-disk layout written by WriteDefault. Durations are
// written in their string form.
type document struct {
	Index struct {
		MaxFileSize int64    `yaml:"max_file_size"`
		Workers     int      `yaml:"workers"`
		Ignore      []string `yaml:"ignore"`
	} `yaml:"index"`
	Watch struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"watch"`
	Search struct {
		SemanticWeight   float64 `yaml:"semantic_weight"`
		StructuralWeight float64 `yaml:"structural_weight"`
		TopK             int     `yaml:"top_k"`
	} `yaml:"search"`
	Embedder struct {
		Provider  string  `yaml:"provider"`
		CacheTTL  string  `yaml:"cache_ttl"`
		CacheSize int     `yaml:"cache_size"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"embedder"`
	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Marshal renders c as YAML. API keys are never written.
func (c *Config) Marshal() ([]byte, error) {
	var doc document
	doc.Index.MaxFileSize = c.Index.MaxFileSize
	doc.Index.Workers = c.Index.Workers
	doc.Index.Ignore = c.Index.Ignore
	doc.Watch.Debounce = c.Watch.Debounce.String()
	doc.Search.SemanticWeight = c.Search.SemanticWeight
	doc.Search.StructuralWeight = c.Search.StructuralWeight
	doc.Search.TopK = c.Search.TopK
	doc.Embedder.Provider = c.Embedder.Provider
	doc.Embedder.CacheTTL = c.Embedder.CacheTTL.String()
	doc.Embedder.CacheSize = c.Embedder.CacheSize
	doc.Embedder.RateLimit = c.Embedder.RateLimit
	doc.Storage.Backend = c.Storage.Backend
	doc.Log.Level = c.Log.Level
	doc.Log.Format = c.Log.Format
	doc.Metrics.Addr = c.Metrics.Addr
	return yaml.Marshal(&doc)
}

// WriteDefault writes the default configuration to path. Existing files
// are only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	d := Default()
	data, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
