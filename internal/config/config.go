package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Cron       CronConfig       `mapstructure:"cron"`
	Spot       SpotConfig       `mapstructure:"spot"`
	Tawhiri    TawhiriConfig    `mapstructure:"tawhiri"`
	Prediction PredictionConfig `mapstructure:"prediction"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "memory". The memory store keeps everything
	// in process and is meant for local runs without a database.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Stream            string        `mapstructure:"stream"`
	Group             string        `mapstructure:"group"`
	Consumer          string        `mapstructure:"consumer"`
	Workers           int           `mapstructure:"workers"`
	BatchSize         int64         `mapstructure:"batch_size"`
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	SweepTimeout      time.Duration `mapstructure:"sweep_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	RetryPollInterval time.Duration `mapstructure:"retry_poll_interval"`
	ClaimMinIdle      time.Duration `mapstructure:"claim_min_idle"`
	MaxLen            int64         `mapstructure:"max_len"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SpotPoll        string `mapstructure:"spot_poll"`
	PredictionSweep string `mapstructure:"prediction_sweep"`
}

type SpotConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	FeedID  string        `mapstructure:"feed_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TawhiriConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

type PredictionConfig struct {
	Profile  string `mapstructure:"profile"`
	PredType string `mapstructure:"pred_type"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BMCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.stream", "bmcc:jobs")
	v.SetDefault("queue.group", "bmcc-workers")
	v.SetDefault("queue.consumer", "")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.block_timeout", "5s")
	v.SetDefault("queue.job_timeout", "2m")
	v.SetDefault("queue.sweep_timeout", "30m")
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.backoff_initial", "2s")
	v.SetDefault("queue.backoff_max", "10m")
	v.SetDefault("queue.backoff_multiplier", 2.0)
	v.SetDefault("queue.retry_poll_interval", "1s")
	v.SetDefault("queue.claim_min_idle", "5m")
	v.SetDefault("queue.max_len", 10000)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.spot_poll", "@every 2m30s")
	v.SetDefault("cron.prediction_sweep", "0 0 * * * *")
	v.SetDefault("spot.base_url", "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed")
	v.SetDefault("spot.feed_id", "")
	v.SetDefault("spot.timeout", "15s")
	v.SetDefault("tawhiri.base_url", "https://api.v2.sondehub.org/tawhiri")
	v.SetDefault("tawhiri.timeout", "30s")
	v.SetDefault("tawhiri.breaker_threshold", 5)
	v.SetDefault("tawhiri.breaker_timeout", "1m")
	v.SetDefault("prediction.profile", "standard_profile")
	v.SetDefault("prediction.pred_type", "single")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
