package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	GoEnv    string `yaml:"go_env" env:"GO_ENV" env-default:"dev"` // dev/prod
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Postgres Postgres `yaml:"postgres"`
	JWT      JWT      `yaml:"jwt"`
	Upstream Upstream `yaml:"upstream"`
	Redis    Redis    `yaml:"redis"`
	Tracing  Tracing  `yaml:"tracing"`
}

type Postgres struct {
	// DATABASE_URL があれば最優先
	URL string `yaml:"url" env:"DATABASE_URL"`

	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"postgres"`
	DB       string `yaml:"db" env:"POSTGRES_DB" env-default:"compras"`
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`

	MaxConns        int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns        int32         `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
}

type JWT struct {
	Secret   string `yaml:"secret" env:"JWT_SECRET"`
	Issuer   string `yaml:"issuer" env:"JWT_ISSUER"`
	Audience string `yaml:"audience" env:"JWT_AUDIENCE"`
}

// 在庫API・配送APIへの接続
type Upstream struct {
	StockURL    string `yaml:"stock_url" env:"STOCK_API_URL"`
	ShippingURL string `yaml:"shipping_url" env:"SHIPPING_API_URL"`

	// client credentials
	TokenURL      string `yaml:"token_url" env:"OAUTH_TOKEN_URL"`
	ClientID      string `yaml:"client_id" env:"OAUTH_CLIENT_ID"`
	ClientSecret  string `yaml:"client_secret" env:"OAUTH_CLIENT_SECRET"`
	StockScope    string `yaml:"stock_scope" env:"STOCK_API_SCOPE"`
	ShippingScope string `yaml:"shipping_scope" env:"SHIPPING_API_SCOPE"`

	Timeout          time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT" env-default:"10s"`
	BreakerFailures  uint32        `yaml:"breaker_failures" env:"BREAKER_CONSECUTIVE_FAILURES" env-default:"5"`
	BreakerOpenFor   time.Duration `yaml:"breaker_open_for" env:"BREAKER_OPEN_TIMEOUT" env-default:"30s"`
	ReadRetryMaxTime time.Duration `yaml:"read_retry_max_time" env:"READ_RETRY_MAX_ELAPSED" env-default:"3s"`
}

type Redis struct {
	// 空ならキャッシュなし
	Addr                string        `yaml:"addr" env:"REDIS_ADDR"`
	Password            string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB                  int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TransportMethodsTTL time.Duration `yaml:"transport_methods_ttl" env:"TRANSPORT_METHODS_TTL" env-default:"10m"`
}

type Tracing struct {
	// 空ならexporterを作らない
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"api-compras"`
}

// Loadは環境変数（CONFIG_PATHがあればyamlも）から読む
func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	//必須チェック
	if cfg.JWT.Secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Upstream.StockURL == "" {
		return Config{}, fmt.Errorf("STOCK_API_URL is required")
	}
	if cfg.Upstream.ShippingURL == "" {
		return Config{}, fmt.Errorf("SHIPPING_API_URL is required")
	}
	if cfg.Upstream.TokenURL == "" {
		return Config{}, fmt.Errorf("OAUTH_TOKEN_URL is required")
	}
	if cfg.Upstream.ClientID == "" {
		return Config{}, fmt.Errorf("OAUTH_CLIENT_ID is required")
	}
	if cfg.Upstream.Timeout <= 0 {
		return Config{}, fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}

	return cfg, nil
}

// DSN は DATABASE_URL を優先し、無ければ POSTGRES_* から組み立てる
func (p Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode,
	)
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}
