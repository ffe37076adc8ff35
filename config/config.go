package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"CryptoTradeCore/internal/models"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", DBName: "trading"},
		Server:   ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Storage: StorageConfig{
			DataDir:     "data",
			ResultStore: ResultStoreSQLite,
			SQLitePath:  filepath.Join("data", "results.db"),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Backtest: BacktestConfig{
			InitialCapital:  100000,
			CommissionRate:  0.001,
			Interval:        models.Interval1h,
			Workers:         runtime.GOMAXPROCS(0),
			MaxCombinations: 10000,
		},
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
	}
}

// Load reads .env when present, then the YAML file at path when path is not
// empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Exchange.APIKey, "BINANCE_API_KEY")
	setString(&cfg.Exchange.SecretKey, "BINANCE_SECRET_KEY")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Storage.DataDir, "DATA_DIR")
	setString(&cfg.Storage.ResultStore, "RESULT_STORE")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")

	for key, dst := range map[string]*int{
		"DB_PORT":          &cfg.Database.Port,
		"API_PORT":         &cfg.Server.Port,
		"BACKTEST_WORKERS": &cfg.Backtest.Workers,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	if symbols := getSymbols(); len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = i
	return nil
}

// helper to get symbols
func getSymbols() []string {
	raw := os.Getenv("TRADING_SYMBOLS")
	if raw == "" {
		return nil
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func (c *Config) Validate() error {
	b := c.Backtest
	if b.InitialCapital <= 0 {
		return models.InvalidParameter("initial_capital", "a positive number", b.InitialCapital)
	}
	if b.CommissionRate < 0 || b.CommissionRate >= 1 {
		return models.InvalidParameter("commission_rate", "in [0, 1)", b.CommissionRate)
	}
	if _, err := models.ParseInterval(string(b.Interval)); err != nil {
		return err
	}
	if b.Workers < 1 {
		return models.InvalidParameter("workers", "a positive integer", float64(b.Workers))
	}
	if b.MaxCombinations < 1 {
		return models.InvalidParameter("max_combinations", "a positive integer", float64(b.MaxCombinations))
	}
	switch c.Storage.ResultStore {
	case ResultStorePostgres, ResultStoreSQLite:
	default:
		return fmt.Errorf("unknown result store %q (want %s or %s)",
			c.Storage.ResultStore, ResultStorePostgres, ResultStoreSQLite)
	}
	if len(c.Symbols) == 0 {
		return errors.New("no trading symbols configured")
	}
	return nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}
