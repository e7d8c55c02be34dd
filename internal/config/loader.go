package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// ErrInsecureSecret is returned when a non-development environment would start
// with an empty or development signing secret.
var ErrInsecureSecret = errors.New("JWT_SECRET must be set outside development")

// GetConfig loads the configuration on first use and returns the global instance.
// Subsequent calls return the same instance and error.
func GetConfig() (*Config, error) {
	initOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			globalErr = err
			return
		}
		globalConfig = *cfg
	})
	if globalErr != nil {
		return nil, globalErr
	}

	return &globalConfig, nil
}

// Load sets default values, overrides them with a .json config file (the path is stored
// in the CONFIG_PATH environment variable), then overrides values from environment
// variables and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if err := loadFromJSON(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from JSON: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDevelopment

	cfg.Server = ServerConfig{
		Port:            "8080",
		Host:            "0.0.0.0",
		ReadTimeout:     Duration(30 * time.Second),
		WriteTimeout:    Duration(30 * time.Second),
		ShutdownTimeout: Duration(10 * time.Second),
	}

	cfg.Database = DatabaseConfig{
		Driver:        DriverMemory,
		Host:          "localhost",
		Port:          "5432",
		User:          "postgres",
		Password:      "password",
		DBName:        "todo",
		SSLMode:       "disable",
		RunMigrations: true,
	}

	cfg.Redis = RedisConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
	}

	cfg.JWT = JWTConfig{
		Secret:           DevSecret,
		Algorithm:        "HS256",
		AccessTTLSeconds: 1800,
		RefreshTTLDays:   7,
		BcryptCost:       12,
	}

	cfg.Login = LoginConfig{
		MaxAttempts:   5,
		AttemptWindow: Duration(15 * time.Minute),
	}

	cfg.Log = LogConfig{Level: "info"}
}

func loadFromJSON(cfg *Config) error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}

// loadFromEnv unmarshals config values from the process environment
func loadFromEnv(cfg *Config) error {
	return env.Parse(cfg)
}

// getConfigPath reads path to .json config from CONFIG_PATH env variable
func getConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join("config", "config.json")
}

func validate(cfg *Config) error {
	v := validator.New()

	// Duration type must be greater than 0
	if err := v.RegisterValidation("duration_gt0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(Duration)
		return ok && d > 0
	}); err != nil {
		return err
	}

	if err := v.Struct(cfg); err != nil {
		return err
	}

	if !cfg.IsDevelopment() && (cfg.JWT.Secret == "" || cfg.JWT.Secret == DevSecret) {
		return ErrInsecureSecret
	}

	return nil
}
