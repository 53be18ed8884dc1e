package config

import "time"

// Backend names accepted by database.driver.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	DQ       DQConfig       `yaml:"dq"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	CORS     CORSConfig     `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"              env:"SERVER_HOST"              env-default:"0.0.0.0"`
	Port            int           `yaml:"port"              env:"SERVER_PORT"              env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"      env:"SERVER_READ_TIMEOUT"      env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"     env:"SERVER_WRITE_TIMEOUT"     env-default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"      env:"SERVER_IDLE_TIMEOUT"      env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"  env:"SERVER_SHUTDOWN_TIMEOUT"  env-default:"10s"`
	ActionRateLimit int           `yaml:"action_rate_limit" env:"SERVER_ACTION_RATE_LIMIT" env-default:"120"`
}

// DatabaseConfig selects the record store. The memory driver keeps all state
// in process and optionally starts from a JSON dataset file.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"             env:"DATABASE_DRIVER"             env-default:"postgres"`
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	Dataset         string        `yaml:"dataset"            env:"DATABASE_DATASET"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"       env-default:"false"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds operator token settings. Tokens are issued elsewhere;
// the engine only verifies them.
type AuthConfig struct {
	OperatorSecret string `yaml:"operator_secret" env:"AUTH_OPERATOR_SECRET"`
	Issuer         string `yaml:"issuer"          env:"AUTH_ISSUER"          env-default:"treecleaner"`
	Required       bool   `yaml:"required"        env:"AUTH_REQUIRED"        env-default:"true"`
}

// DQConfig holds detection and remediation tunables.
type DQConfig struct {
	MediaSizeBump     float64       `yaml:"media_size_bump"     env:"DQ_MEDIA_SIZE_BUMP"     env-default:"0.05"`
	MaxMergeRefs      int           `yaml:"max_merge_refs"      env:"DQ_MAX_MERGE_REFS"      env-default:"10000"`
	MaxNormalizeItems int           `yaml:"max_normalize_items" env:"DQ_MAX_NORMALIZE_ITEMS" env-default:"1000"`
	TxMaxRetries      uint64        `yaml:"tx_max_retries"      env:"DQ_TX_MAX_RETRIES"      env-default:"3"`
	TxRetryBaseDelay  time.Duration `yaml:"tx_retry_base_delay" env:"DQ_TX_RETRY_BASE_DELAY" env-default:"20ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path"    env:"METRICS_PATH"    env-default:"/metrics"`
}
