package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Provider exposes read access to application configuration. Components take
// this interface instead of the concrete Config so tests can substitute their
// own values.
type Provider interface {
	GetAddr() string
	GetDBURL() string
	GetDBUser() string
	GetDBPass() string
	GetDBNs() string
	GetDBDb() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
	GetSessionSecret() string
	GetBotAPIKey() string
	GetBotAPIURL() string
	GetTrainingDataPath() string
}

// Config holds all configuration for the application, loaded from the
// environment (optionally via a .env file).
type Config struct {
	Addr   string `validate:"required"`
	DBUrl  string `validate:"required"`
	DBUser string
	DBPass string
	DBNs   string `validate:"required"`
	DBDb   string `validate:"required"`

	DBQueryTimeout   time.Duration `validate:"gt=0"`
	DBExecuteTimeout time.Duration `validate:"gt=0"`

	SessionSecret string `validate:"required"`

	// BotAPIKey enables the generative reply path when non-empty.
	BotAPIKey string
	BotAPIURL string

	// TrainingDataPath optionally overrides the bundled canned-response table.
	TrainingDataPath string
}

// New loads configuration from environment variables. It terminates the
// process when a required value is missing, since there is no useful way to
// continue without a database.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:             getEnv("CHAT_ADDR", ":8080"),
		DBUrl:            os.Getenv("SURREAL_URL"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBQueryTimeout:   getDurationEnv("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: getDurationEnv("DB_EXECUTE_TIMEOUT", 10*time.Second),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		BotAPIKey:        os.Getenv("BOT_API_KEY"),
		BotAPIURL:        getEnv("BOT_API_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"),
		TrainingDataPath: os.Getenv("TRAINING_DATA_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func (c *Config) GetAddr() string                    { return c.Addr }
func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetSessionSecret() string           { return c.SessionSecret }
func (c *Config) GetBotAPIKey() string               { return c.BotAPIKey }
func (c *Config) GetBotAPIURL() string               { return c.BotAPIURL }
func (c *Config) GetTrainingDataPath() string        { return c.TrainingDataPath }
