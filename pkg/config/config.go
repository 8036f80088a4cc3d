package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "PLATEWISE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PLATEWISE_APP_ENV"
	EnvPort     = "PLATEWISE_APP_PORT"
	EnvLogLevel = "PLATEWISE_LOG_LEVEL"

	EnvDBDSN  = "PLATEWISE_DB_DSN"
	EnvDBHost = "PLATEWISE_DB_HOST"
	EnvDBUser = "PLATEWISE_DB_USER"
	EnvDBName = "PLATEWISE_DB_NAME"

	EnvRedisURL = "PLATEWISE_REDIS_URL"

	EnvJWTSecret  = "PLATEWISE_JWT_SECRET"
	EnvJWTIssuer  = "PLATEWISE_JWT_ISSUER"
	EnvJWTExpMins = "PLATEWISE_JWT_EXPIRATION_MINUTES"

	EnvS3Endpoint   = "PLATEWISE_S3_ENDPOINT"
	EnvS3Bucket     = "PLATEWISE_S3_BUCKET"
	EnvS3AccessKey  = "PLATEWISE_S3_ACCESS_KEY_ID"
	EnvS3SecretKey  = "PLATEWISE_S3_SECRET_ACCESS_KEY"
	EnvS3PresignTTL = "PLATEWISE_S3_PRESIGN_TTL"

	EnvGeminiAPIKey = "PLATEWISE_GEMINI_API_KEY"

	EnvRateLimitBackend = "PLATEWISE_RATE_LIMIT_BACKEND"
	EnvPublicDailyLimit = "PLATEWISE_RATE_LIMIT_PUBLIC_DAILY"
	EnvTrustedProxies   = "PLATEWISE_RATE_LIMIT_TRUSTED_PROXIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	S3           S3Config
	Gemini       GeminiConfig
	Vision       VisionConfig
	Media        MediaConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.RateLimit.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MigrateConfig is the subset cmd/migrate needs; it does not require the
// storage or model credentials.
type MigrateConfig struct {
	App AppConfig
	DB  DBConfig
}

func LoadMigrate() (*MigrateConfig, error) {
	var cfg MigrateConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PLATEWISE_APP_ENV" required:"true"`
	Port         string `envconfig:"PLATEWISE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLATEWISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLATEWISE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PLATEWISE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"PLATEWISE_DB_DSN"`

	LegacyHost     string `envconfig:"PLATEWISE_DB_HOST"`
	LegacyPort     int    `envconfig:"PLATEWISE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLATEWISE_DB_USER"`
	LegacyPassword string `envconfig:"PLATEWISE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLATEWISE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLATEWISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLATEWISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLATEWISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLATEWISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLATEWISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PLATEWISE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLATEWISE_REDIS_URL"`
	Address      string        `envconfig:"PLATEWISE_REDIS_ADDR"`
	Password     string        `envconfig:"PLATEWISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLATEWISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLATEWISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLATEWISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLATEWISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLATEWISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLATEWISE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"PLATEWISE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PLATEWISE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PLATEWISE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PLATEWISE_AUTO_MIGRATE" default:"false"`
}

type S3Config struct {
	Endpoint        string        `envconfig:"PLATEWISE_S3_ENDPOINT" default:"s3.amazonaws.com"`
	Region          string        `envconfig:"PLATEWISE_S3_REGION" default:"us-east-1"`
	AccessKeyID     string        `envconfig:"PLATEWISE_S3_ACCESS_KEY_ID" required:"true"`
	SecretAccessKey string        `envconfig:"PLATEWISE_S3_SECRET_ACCESS_KEY" required:"true"`
	Bucket          string        `envconfig:"PLATEWISE_S3_BUCKET" required:"true"`
	UseSSL          bool          `envconfig:"PLATEWISE_S3_USE_SSL" default:"true"`
	PresignTTL      time.Duration `envconfig:"PLATEWISE_S3_PRESIGN_TTL" default:"24h"`
}

type GeminiConfig struct {
	APIKey string `envconfig:"PLATEWISE_GEMINI_API_KEY" required:"true"`
	Model  string `envconfig:"PLATEWISE_GEMINI_MODEL" default:"gemini-2.0-flash"`
}

type VisionConfig struct {
	Timeout       time.Duration `envconfig:"PLATEWISE_VISION_TIMEOUT" default:"30s"`
	MaxConcurrent int           `envconfig:"PLATEWISE_VISION_MAX_CONCURRENT" default:"4"`
}

type MediaConfig struct {
	MaxUploadMB       int `envconfig:"PLATEWISE_MAX_UPLOAD_MB" default:"10"`
	PublicMaxUploadMB int `envconfig:"PLATEWISE_PUBLIC_MAX_UPLOAD_MB" default:"10"`
	ImageMaxWidth     int `envconfig:"PLATEWISE_MEDIA_IMAGE_MAX_WIDTH" default:"1920"`
	ImageMaxHeight    int `envconfig:"PLATEWISE_MEDIA_IMAGE_MAX_HEIGHT" default:"1080"`
	ImageQuality      int `envconfig:"PLATEWISE_MEDIA_IMAGE_QUALITY" default:"80"`
}

// MaxUploadBytes returns the authenticated upload cap in bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	return int64(m.MaxUploadMB) << 20
}

// PublicMaxUploadBytes returns the anonymous upload cap in bytes.
func (m MediaConfig) PublicMaxUploadBytes() int64 {
	return int64(m.PublicMaxUploadMB) << 20
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type RateLimitConfig struct {
	Backend       string        `envconfig:"PLATEWISE_RATE_LIMIT_BACKEND" default:"memory"`
	PublicDaily   int           `envconfig:"PLATEWISE_RATE_LIMIT_PUBLIC_DAILY" default:"5"`
	Window        time.Duration `envconfig:"PLATEWISE_RATE_LIMIT_WINDOW" default:"24h"`
	SweepInterval time.Duration `envconfig:"PLATEWISE_RATE_LIMIT_SWEEP_INTERVAL" default:"1h"`

	// TrustedProxies lists the CIDRs (or bare IPs) of load balancers whose
	// X-Forwarded-For header may name the client. Empty means the socket peer
	// is always the client.
	TrustedProxies []string `envconfig:"PLATEWISE_RATE_LIMIT_TRUSTED_PROXIES"`
}

func (r RateLimitConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Backend)) {
	case RateLimitBackendMemory, RateLimitBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvRateLimitBackend, RateLimitBackendMemory, RateLimitBackendRedis)
	}
	if r.PublicDaily <= 0 {
		return fmt.Errorf("%s must be positive", EnvPublicDailyLimit)
	}
	if _, err := r.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (r RateLimitConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, raw := range r.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid cidr %q: %w", EnvTrustedProxies, raw, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid address %q: %w", EnvTrustedProxies, raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// UsesRedis reports whether the limiter should be backed by Redis.
func (r RateLimitConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(r.Backend), RateLimitBackendRedis)
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"PLATEWISE_CRON_INTERVAL" default:"15m"`
	AnalysisRetryBatch  int           `envconfig:"PLATEWISE_CRON_ANALYSIS_RETRY_BATCH" default:"25"`
	AnalysisRetryMinAge time.Duration `envconfig:"PLATEWISE_CRON_ANALYSIS_RETRY_MIN_AGE" default:"10m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PLATEWISE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
