package config

import "CryptoTradeCore/internal/models"

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Symbols  []string       `yaml:"symbols"`
}

type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects where candles are cached and results persisted.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	ResultStore string `yaml:"result_store"` // postgres | sqlite
	SQLitePath  string `yaml:"sqlite_path"`
}

const (
	ResultStorePostgres = "postgres"
	ResultStoreSQLite   = "sqlite"
)

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BacktestConfig struct {
	InitialCapital  float64         `yaml:"initial_capital"`
	CommissionRate  float64         `yaml:"commission_rate"`
	Interval        models.Interval `yaml:"interval"`
	Workers         int             `yaml:"workers"`
	MaxCombinations int             `yaml:"max_combinations"`
}
