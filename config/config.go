package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port            int           `env:"SERVER_PORT" envDefault:"5250"`
		AllowedOrigins  []string      `env:"SERVER_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Database struct {
		Path string `env:"DB_PATH" envDefault:"database/casaval.db"`
	}

	Search struct {
		// Result count when the caller does not ask for one
		DefaultLimit int `env:"SEARCH_DEFAULT_LIMIT" envDefault:"12"`

		// Relaxation schedule: flexibility is FlexibilityStep*(attempt-1),
		// so the first attempt runs at 0
		MaxAttempts     int     `env:"SEARCH_MAX_ATTEMPTS" envDefault:"3"`
		FlexibilityStep float64 `env:"SEARCH_FLEXIBILITY_STEP" envDefault:"0.5"`

		// Upper bound on candidates fetched per attempt, kept well above
		// any sensible result limit
		CandidateCeiling int `env:"SEARCH_CANDIDATE_CEILING" envDefault:"100"`

		// Wall-clock budget for one search across all attempts
		Timeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"10s"`

		BaseRadiusMeters float64 `env:"SEARCH_BASE_RADIUS_METERS" envDefault:"3000"`
		RadiusGrowth     float64 `env:"SEARCH_RADIUS_GROWTH" envDefault:"0.8"`

		// Price windows: the luxury segment starts wider but grows slower,
		// the final attempt multiplies the percentage to guarantee matches
		// in thin markets
		LuxuryPriceThreshold float64 `env:"SEARCH_LUXURY_PRICE_THRESHOLD" envDefault:"2000000"`
		StandardPricePct     float64 `env:"SEARCH_STANDARD_PRICE_PCT" envDefault:"0.30"`
		StandardPriceGrowth  float64 `env:"SEARCH_STANDARD_PRICE_GROWTH" envDefault:"0.50"`
		LuxuryPricePct       float64 `env:"SEARCH_LUXURY_PRICE_PCT" envDefault:"0.40"`
		LuxuryPriceGrowth    float64 `env:"SEARCH_LUXURY_PRICE_GROWTH" envDefault:"0.30"`
		FinalPriceFactor     float64 `env:"SEARCH_FINAL_PRICE_FACTOR" envDefault:"2.5"`

		AreaPct    float64 `env:"SEARCH_AREA_PCT" envDefault:"0.25"`
		AreaGrowth float64 `env:"SEARCH_AREA_GROWTH" envDefault:"0.25"`

		// Adjacent-city expansion only kicks in at or above this flexibility
		AdjacencyMinFlexibility float64 `env:"SEARCH_ADJACENCY_MIN_FLEXIBILITY" envDefault:"1.0"`
	}

	Index struct {
		RebuildInterval time.Duration `env:"INDEX_REBUILD_INTERVAL" envDefault:"15m"`
		RefreshDebounce time.Duration `env:"INDEX_REFRESH_DEBOUNCE" envDefault:"2s"`
	}

	BatchProcessing struct {
		// Maximum number of properties per upsert batch
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Capacity of the intake queue, in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"50"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"5s"`
	}

	Diagnostics struct {
		// Empty URL disables the NATS publisher
		NATSURL string `env:"DIAGNOSTICS_NATS_URL"`
		Subject string `env:"DIAGNOSTICS_NATS_SUBJECT" envDefault:"casaval.search.attempts"`
	}

	Zones struct {
		// Optional JSON file overriding the built-in zone registry
		Path string `env:"ZONES_PATH"`
	}

	Logging struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}
}

func LoadConfig() (*Config, error) {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
