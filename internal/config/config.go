// config описывает конфигурацию сервиса и её загрузку из файла и переменных
// окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Auth     AuthConfig     `yaml:"auth"`
	Password PasswordConfig `yaml:"password"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

// HTTPConfig — публичный HTTP API.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// MetricsConfig — служебный сервер (/livez, /healthz, /metrics).
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// Все четыре значения обязательны.
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	Issuer             string `yaml:"issuer" env:"JWT_ISSUER" env-required:"true"`
	AccessTokenMinutes int    `yaml:"access_token_minutes" env:"JWT_ACCESS_TOKEN_MINUTES" env-required:"true"`
	RefreshTokenDays   int    `yaml:"refresh_token_days" env:"JWT_REFRESH_TOKEN_DAYS" env-required:"true"`
}

// MinSecretLength — минимальная длина секрета HS256 в байтах.
const MinSecretLength = 32

// AccessTokenTTL — время жизни access-токена.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

// RefreshTokenTTL — время жизни refresh-токена.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenDays) * 24 * time.Hour
}

// Validate проверяет, что параметры токенов заданы и осмысленны.
func (a AuthConfig) Validate() error {
	var errs []error

	if a.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(a.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength))
	}

	if a.Issuer == "" {
		errs = append(errs, errors.New("auth.issuer is required"))
	}

	if a.AccessTokenMinutes <= 0 {
		errs = append(errs, errors.New("auth.access_token_minutes must be positive"))
	}

	if a.RefreshTokenDays <= 0 {
		errs = append(errs, errors.New("auth.refresh_token_days must be positive"))
	}

	return errors.Join(errs...)
}

// PasswordConfig — политика паролей и стоимость bcrypt.
type PasswordConfig struct {
	BcryptCost    int  `yaml:"bcrypt_cost" env:"PASSWORD_BCRYPT_COST" env-default:"10"`
	MinLength     int  `yaml:"min_length" env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	RequireDigit  bool `yaml:"require_digit" env:"PASSWORD_REQUIRE_DIGIT" env-default:"true"`
	RequireLower  bool `yaml:"require_lower" env:"PASSWORD_REQUIRE_LOWER" env-default:"true"`
	RequireUpper  bool `yaml:"require_upper" env:"PASSWORD_REQUIRE_UPPER" env-default:"true"`
	RequireSymbol bool `yaml:"require_symbol" env:"PASSWORD_REQUIRE_SYMBOL" env-default:"true"`
}

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// StorageConfig выбирает и настраивает хранилище учётных записей.
type StorageConfig struct {
	Driver          string         `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Migrate         bool           `yaml:"migrate" env:"STORAGE_MIGRATE" env-default:"true"`
	JanitorInterval time.Duration  `yaml:"janitor_interval" env:"STORAGE_JANITOR_INTERVAL" env-default:"30m"`
	Postgres        PostgresConfig `yaml:"postgres"`
	SQLite          SQLiteConfig   `yaml:"sqlite"`
	Redis           RedisConfig    `yaml:"redis"`
	Mongo           MongoConfig    `yaml:"mongo"`
}

// PostgresConfig — подключение к PostgreSQL.
type PostgresConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

// SQLiteConfig — путь к файлу базы SQLite.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"auth.db"`
}

// RedisConfig — подключение к Redis.
type RedisConfig struct {
	URL    string `yaml:"url" env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth"`
}

// MongoConfig — подключение к MongoDB.
type MongoConfig struct {
	URL      string `yaml:"url" env:"MONGO_URL"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"auth"`
}

// Validate проверяет выбранный драйвер и его обязательные параметры.
func (s StorageConfig) Validate() error {
	switch s.Driver {
	case DriverPostgres:
		if s.Postgres.URL == "" {
			return errors.New("storage.postgres.url is required for postgres driver")
		}
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for sqlite driver")
		}
	case DriverRedis:
		if s.Redis.URL == "" {
			return errors.New("storage.redis.url is required for redis driver")
		}
	case DriverMongo:
		if s.Mongo.URL == "" {
			return errors.New("storage.mongo.url is required for mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", s.Driver)
	}

	return nil
}

// TracingConfig — экспорт трейсов по OTLP/HTTP (endpoint — полный URL);
// пустой endpoint отключает экспорт.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"auth-system"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Validate проверяет конфигурацию целиком.
func (c *Config) Validate() error {
	return errors.Join(c.Auth.Validate(), c.Storage.Validate())
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}

		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		return &cfg, nil
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
