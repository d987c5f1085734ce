package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// TrackingConfig 视频观看追踪的服务端参数。
type TrackingConfig struct {
	// SessionTTL 会话令牌有效期（小时）
	SessionTTL time.Duration `mapstructure:"session_ttl_hours"`
	// CompletionThreshold 判定「已完成」的完成百分比阈值
	CompletionThreshold float64 `mapstructure:"completion_threshold"`
	// MaxFutureSkew 事件客户端时间戳允许超前服务器时间的上限（秒）
	MaxFutureSkew time.Duration `mapstructure:"max_future_skew_seconds"`
	// IngestTimeout 单个批次应用的服务端超时（秒），超时整批失败
	IngestTimeout time.Duration `mapstructure:"ingest_timeout_seconds"`
	// MaxBatchEvents 单批事件数上限
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	// LivenessTTL Redis「仍在观看」信号的过期时间（秒）
	LivenessTTL time.Duration `mapstructure:"liveness_ttl_seconds"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("COURSE_VIDEO")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Tracking.SessionTTL = cfg.Tracking.SessionTTL * time.Hour
	cfg.Tracking.MaxFutureSkew = cfg.Tracking.MaxFutureSkew * time.Second
	cfg.Tracking.IngestTimeout = cfg.Tracking.IngestTimeout * time.Second
	cfg.Tracking.LivenessTTL = cfg.Tracking.LivenessTTL * time.Second
	applyTrackingDefaults(&cfg.Tracking)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

func applyTrackingDefaults(t *TrackingConfig) {
	if t.SessionTTL <= 0 {
		t.SessionTTL = 12 * time.Hour
	}
	if t.CompletionThreshold <= 0 || t.CompletionThreshold > 100 {
		t.CompletionThreshold = 95.0
	}
	if t.MaxFutureSkew <= 0 {
		t.MaxFutureSkew = 5 * time.Minute
	}
	if t.IngestTimeout <= 0 {
		t.IngestTimeout = 10 * time.Second
	}
	if t.MaxBatchEvents <= 0 {
		t.MaxBatchEvents = 200
	}
	if t.LivenessTTL <= 0 {
		t.LivenessTTL = 90 * time.Second
	}
}
