// backend-go/internal/config/config.go
package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	App         AppConfig
	Cache       CacheConfig
	Storage     StorageConfig
	Forecast    ForecastConfig
	Performance PerformanceConfig
	Optimizer   OptimizerConfig
	Retraining  RetrainingConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	LogLevel       string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	AnalysisTimeout time.Duration
	ExportReports   bool
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	MaxEntries       int
	DefaultTTL       time.Duration
	FeatureStaleness time.Duration
}

type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	ReportPrefix string
	// LocalDir holds reports when object storage is disabled
	LocalDir string
}

type ForecastConfig struct {
	WMAWindow      int
	TrendWindow    int
	MinHistoryDays int
	MAPETestDays   int
	MinMAPEDays    int
}

type PerformanceConfig struct {
	HoldingRate            float64
	OverstockDaysThreshold float64
	MinFallbackDays        int
}

type OptimizerConfig struct {
	TargetStockoutRate   float64
	TargetOverstockRate  float64
	MinSecurityStockDays float64
	MaxSecurityStockDays float64
	HoldingCostRate      float64
}

type RetrainingConfig struct {
	Enabled              bool
	MinValidationSamples int
	MinTrainingSamples   int
	Cooldown             time.Duration
	DegradationThreshold float64
	StateKey             string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults()

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				LogLevel:       viper.GetString("LOG_LEVEL"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				AnalysisTimeout: viper.GetDuration("ANALYSIS_TIMEOUT"),
				ExportReports:   viper.GetBool("EXPORT_REPORTS"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				MaxEntries:       viper.GetInt("CACHE_MAX_ENTRIES"),
				DefaultTTL:       viper.GetDuration("CACHE_DEFAULT_TTL"),
				FeatureStaleness: viper.GetDuration("FEATURE_STALE_AFTER"),
			},
			Storage: StorageConfig{
				Enabled:      viper.GetBool("STORAGE_ENABLED"),
				Endpoint:     viper.GetString("STORAGE_ENDPOINT"),
				AccessKey:    viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey:    viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:       viper.GetString("STORAGE_BUCKET"),
				Region:       viper.GetString("STORAGE_REGION"),
				UseSSL:       viper.GetBool("STORAGE_USE_SSL"),
				ReportPrefix: viper.GetString("STORAGE_REPORT_PREFIX"),
				LocalDir:     viper.GetString("STORAGE_LOCAL_DIR"),
			},
			Forecast: ForecastConfig{
				WMAWindow:      viper.GetInt("FORECAST_WMA_WINDOW"),
				TrendWindow:    viper.GetInt("FORECAST_TREND_WINDOW"),
				MinHistoryDays: viper.GetInt("FORECAST_MIN_HISTORY_DAYS"),
				MAPETestDays:   viper.GetInt("FORECAST_MAPE_TEST_DAYS"),
				MinMAPEDays:    viper.GetInt("FORECAST_MIN_MAPE_DAYS"),
			},
			Performance: PerformanceConfig{
				HoldingRate:            viper.GetFloat64("PERFORMANCE_HOLDING_RATE"),
				OverstockDaysThreshold: viper.GetFloat64("PERFORMANCE_OVERSTOCK_DAYS"),
				MinFallbackDays:        viper.GetInt("PERFORMANCE_MIN_FALLBACK_DAYS"),
			},
			Optimizer: OptimizerConfig{
				TargetStockoutRate:   viper.GetFloat64("OPTIMIZER_TARGET_STOCKOUT_RATE"),
				TargetOverstockRate:  viper.GetFloat64("OPTIMIZER_TARGET_OVERSTOCK_RATE"),
				MinSecurityStockDays: viper.GetFloat64("OPTIMIZER_MIN_SECURITY_DAYS"),
				MaxSecurityStockDays: viper.GetFloat64("OPTIMIZER_MAX_SECURITY_DAYS"),
				HoldingCostRate:      viper.GetFloat64("OPTIMIZER_HOLDING_COST_RATE"),
			},
			Retraining: RetrainingConfig{
				Enabled:              viper.GetBool("RETRAINING_ENABLED"),
				MinValidationSamples: viper.GetInt("RETRAINING_MIN_VALIDATION_SAMPLES"),
				MinTrainingSamples:   viper.GetInt("RETRAINING_MIN_TRAINING_SAMPLES"),
				Cooldown:             viper.GetDuration("RETRAINING_COOLDOWN"),
				DegradationThreshold: viper.GetFloat64("RETRAINING_MAPE_THRESHOLD"),
				StateKey:             viper.GetString("RETRAINING_STATE_KEY"),
			},
		}
	})

	return instance
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "autopo")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("ANALYSIS_TIMEOUT", "2m")
	viper.SetDefault("EXPORT_REPORTS", false)
	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "127.0.0.1")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_MAX_ENTRIES", 100)
	viper.SetDefault("CACHE_DEFAULT_TTL", "5m")
	viper.SetDefault("FEATURE_STALE_AFTER", "1h")
	viper.SetDefault("STORAGE_ENABLED", false)
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("STORAGE_USE_SSL", true)
	viper.SetDefault("STORAGE_REPORT_PREFIX", "reports/optimization")
	viper.SetDefault("STORAGE_LOCAL_DIR", "./data")
	viper.SetDefault("FORECAST_WMA_WINDOW", 7)
	viper.SetDefault("FORECAST_TREND_WINDOW", 28)
	viper.SetDefault("FORECAST_MIN_HISTORY_DAYS", 30)
	viper.SetDefault("FORECAST_MAPE_TEST_DAYS", 30)
	viper.SetDefault("FORECAST_MIN_MAPE_DAYS", 60)
	viper.SetDefault("PERFORMANCE_HOLDING_RATE", 0.01)
	viper.SetDefault("PERFORMANCE_OVERSTOCK_DAYS", 0)
	viper.SetDefault("PERFORMANCE_MIN_FALLBACK_DAYS", 30)
	viper.SetDefault("OPTIMIZER_TARGET_STOCKOUT_RATE", 0.05)
	viper.SetDefault("OPTIMIZER_TARGET_OVERSTOCK_RATE", 0.20)
	viper.SetDefault("OPTIMIZER_MIN_SECURITY_DAYS", 3)
	viper.SetDefault("OPTIMIZER_MAX_SECURITY_DAYS", 30)
	viper.SetDefault("OPTIMIZER_HOLDING_COST_RATE", 0.25)
	viper.SetDefault("RETRAINING_ENABLED", true)
	viper.SetDefault("RETRAINING_MIN_VALIDATION_SAMPLES", 30)
	viper.SetDefault("RETRAINING_MIN_TRAINING_SAMPLES", 100)
	viper.SetDefault("RETRAINING_COOLDOWN", "24h")
	viper.SetDefault("RETRAINING_MAPE_THRESHOLD", 25.0)
	viper.SetDefault("RETRAINING_STATE_KEY", "retraining:state")
}
