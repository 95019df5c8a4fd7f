// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Поддерживаемые сети
const (
	ChainEVM    = "evm"
	ChainSolana = "solana"
)

// Поддерживаемые хранилища
const (
	StorageSQL    = "sql"
	StorageMemory = "memory"
)

type Config struct {
	Chain          string   `mapstructure:"chain"`
	RPCList        []string `mapstructure:"rpc_list"`
	RPCDelay       int      `mapstructure:"rpc_delay"`
	Retries        int      `mapstructure:"retries"`
	RequestTimeout int      `mapstructure:"request_timeout"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	Storage        string   `mapstructure:"storage"`
	DatabaseURL    string   `mapstructure:"database_url"`
	BlockCount     int      `mapstructure:"block_count"`
	WatchInterval  int      `mapstructure:"watch_interval"`
	MetricsAddr    string   `mapstructure:"metrics_addr"`
	DebugLogging   bool     `mapstructure:"debug_logging"`
	LogSQL         bool     `mapstructure:"log_sql"`
	LogFile        string   `mapstructure:"log_file"`
}

const (
	DefaultChain          = ChainEVM
	DefaultRPCDelay       = 500
	DefaultRetries        = 2
	DefaultRequestTimeout = 10000
	DefaultStorage        = StorageSQL
	DefaultBlockCount     = 10
	DefaultWatchInterval  = 12
	DefaultMetricsAddr    = ":9090"
	DefaultLogFile        = "logs/indexer.log"

	envPrefix = "BLOCK_INDEXER"
)

// LoadConfig читает файл конфигурации (json, yaml или toml по расширению),
// применяет значения по умолчанию и переменные окружения BLOCK_INDEXER_*.
// Пустой path означает конфигурацию только из окружения.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"chain":           DefaultChain,
		"rpc_list":        []string{},
		"rpc_delay":       DefaultRPCDelay,
		"retries":         DefaultRetries,
		"request_timeout": DefaultRequestTimeout,
		"rate_limit":      0,
		"storage":         DefaultStorage,
		"database_url":    "",
		"block_count":     DefaultBlockCount,
		"watch_interval":  DefaultWatchInterval,
		"metrics_addr":    DefaultMetricsAddr,
		"debug_logging":   false,
		"log_sql":         false,
		"log_file":        DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// RPC_LIST в окружении задается через запятую
	if envRPCList := v.GetString("rpc_list_env"); envRPCList != "" {
		if rpcs := splitList(envRPCList); len(rpcs) > 0 {
			cfg.RPCList = rpcs
		}
	}

	return &cfg, validateConfig(&cfg)
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Список читается отдельно, чтобы не зависеть от разбора срезов viper
	_ = v.BindEnv("rpc_list_env", envPrefix+"_RPC_LIST")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(item); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	switch cfg.Chain {
	case ChainEVM, ChainSolana:
	default:
		return fmt.Errorf("unsupported chain %q", cfg.Chain)
	}
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	// solana-go rpc.Client работает только по HTTP
	schemes := []string{"http", "https", "ws", "wss"}
	if cfg.Chain == ChainSolana {
		schemes = []string{"http", "https"}
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, schemes...); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	switch cfg.Storage {
	case StorageMemory:
	case StorageSQL:
		if cfg.DatabaseURL == "" {
			return errors.New("database_url is required for sql storage")
		}
		// DSN mysql (user:pass@tcp(host:port)/db) не разбирается net/url, проверяем только схему
		if !hasAnyPrefix(cfg.DatabaseURL, "postgres://", "postgresql://", "mysql://") {
			return errors.New("database_url must start with postgres://, postgresql:// or mysql://")
		}
	default:
		return fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.RPCDelay <= 0 {
		return errors.New("invalid rpc_delay")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("invalid request_timeout")
	}
	if cfg.RateLimit < 0 {
		return errors.New("invalid rate_limit")
	}
	if cfg.BlockCount < 1 {
		return errors.New("block_count must be at least 1")
	}
	if cfg.WatchInterval <= 0 {
		return errors.New("invalid watch_interval")
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocols ...string) error {
	key := strings.Join(protocols, ",") + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	for _, protocol := range protocols {
		if parsed.Scheme == protocol {
			urlCache.Store(key, parsed)
			return nil
		}
	}
	return errors.New("invalid URL protocol")
}

// RetryDelay возвращает начальную задержку между попытками RPC
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RPCDelay) * time.Millisecond
}

// Timeout возвращает таймаут одного RPC-запроса
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// Interval возвращает период запуска в режиме наблюдения
func (c *Config) Interval() time.Duration {
	return time.Duration(c.WatchInterval) * time.Second
}
