package config

import (
	"sync"
	"time"
)

// DevSecret is the signing secret used when nothing else is configured.
// It is only accepted while APP_ENV is development or test.
const DevSecret = "dev-only-insecure-secret-change-me"

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var (
	globalConfig Config
	globalErr    error
	initOnce     sync.Once
)

type Config struct {
	Env      string         `json:"env" env:"APP_ENV" validate:"required,oneof=development test production"`
	Server   ServerConfig   `json:"server" envPrefix:"SERVER_" validate:"required"`
	Database DatabaseConfig `json:"database" envPrefix:"DB_" validate:"required"`
	Redis    RedisConfig    `json:"redis" envPrefix:"REDIS_"`
	JWT      JWTConfig      `json:"jwt" validate:"required"`
	Login    LoginConfig    `json:"login" envPrefix:"LOGIN_" validate:"required"`
	Log      LogConfig      `json:"log" envPrefix:"LOG_" validate:"required"`
}

type ServerConfig struct {
	Port            string   `json:"port" env:"PORT" validate:"required,numeric"`
	Host            string   `json:"host" env:"HOST" validate:"required,hostname|ip"`
	ReadTimeout     Duration `json:"read_timeout" env:"READ_TIMEOUT" validate:"required,duration_gt0"`
	WriteTimeout    Duration `json:"write_timeout" env:"WRITE_TIMEOUT" validate:"required,duration_gt0"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"required,duration_gt0"`
}

// Addr returns host:port suitable for http.Server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	Driver        string `json:"driver" env:"DRIVER" validate:"required,oneof=postgres memory"`
	Host          string `json:"host" env:"HOST" validate:"required_if=Driver postgres"`
	Port          string `json:"port" env:"PORT" validate:"required_if=Driver postgres"`
	User          string `json:"user" env:"USER" validate:"required_if=Driver postgres"`
	Password      string `json:"password" env:"PASSWORD"`
	DBName        string `json:"db_name" env:"NAME" validate:"required_if=Driver postgres"`
	SSLMode       string `json:"ssl_mode" env:"SSL_MODE" validate:"oneof=disable require verify-ca verify-full"`
	RunMigrations bool   `json:"run_migrations" env:"RUN_MIGRATIONS"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	Addr     string `json:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	Password string `json:"password" env:"PASSWORD"`
	DB       int    `json:"db" env:"DB" validate:"gte=0"`
}

// JWTConfig keeps the variable names the service has always been deployed with,
// so it carries no envPrefix.
type JWTConfig struct {
	Secret           string `json:"secret" env:"JWT_SECRET"`
	Algorithm        string `json:"algorithm" env:"JWT_ALGORITHM" validate:"required,oneof=HS256 HS384 HS512"`
	AccessTTLSeconds int    `json:"access_token_expire_seconds" env:"ACCESS_TOKEN_EXPIRE_SECONDS" validate:"gt=0"`
	RefreshTTLDays   int    `json:"refresh_token_expire_days" env:"REFRESH_TOKEN_EXPIRE_DAYS" validate:"gt=0"`
	BcryptCost       int    `json:"bcrypt_cost" env:"BCRYPT_COST" validate:"gte=4,lte=31"`
}

func (j JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLSeconds) * time.Second
}

func (j JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLDays) * 24 * time.Hour
}

type LoginConfig struct {
	MaxAttempts   int      `json:"max_attempts" env:"MAX_ATTEMPTS" validate:"gt=0"`
	AttemptWindow Duration `json:"attempt_window" env:"ATTEMPT_WINDOW" validate:"required,duration_gt0"`
}

type LogConfig struct {
	Level string `json:"level" env:"LEVEL" validate:"required,oneof=debug info warn error"`
}

// IsDevelopment reports whether insecure development fallbacks are allowed.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment || c.Env == EnvTest
}
