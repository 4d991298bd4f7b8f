// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting the ria binaries read from the environment.
//
// Variable names are unprefixed so the same .env file can be shared with the
// Postgres container (POSTGRES_USER, POSTGRES_DB).
type Config struct {
	AppName string `envconfig:"APP_NAME" default:"RIA"`

	DBDialect  string `envconfig:"DB_DIALECT" default:"postgresql"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBDatabase string `envconfig:"DB_DATABASE"`
	DBSchema   string `envconfig:"DB_PGSCHEMA" default:"ria"`
	DBUsername string `envconfig:"DB_USERNAME"`
	DBPassword string `envconfig:"DB_PASSWORD"`

	// PostgresUser and PostgresDB drive schema provisioning.
	PostgresUser string `envconfig:"POSTGRES_USER"`
	PostgresDB   string `envconfig:"POSTGRES_DB"`

	LLMProvider    string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-pro"`
	AnthropicKey   string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel string `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-sonnet-latest"`
	OpenAIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	AWSAccessKey string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion    string `envconfig:"AWS_DEFAULT_REGION" default:"ap-southeast-2"`
	AWSBucket    string `envconfig:"AWS_BUCKET"`

	RedisHost string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort int    `envconfig:"REDIS_PORT" default:"6379"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	HTTPAddr          string `envconfig:"HTTP_ADDR" default:":8000"`
	ResumeUploadDir   string `envconfig:"RESUME_UPLOAD_DIR" default:"./resumes"`
	RunStore          string `envconfig:"RUN_STORE" default:"postgres"`
	SQLitePath        string `envconfig:"SQLITE_PATH" default:"./ria-runs.db"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	OTelEnabled       bool   `envconfig:"OTEL_ENABLED" default:"false"`
}

// Load reads an optional .env file and then processes the environment.
// Values already present in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is not an error; containers pass everything via env.
		_ = godotenv.Load(f)
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &c, nil
}

// DatabaseURL returns the libpq-style connection URL, or "" when no database
// name is configured.
func (c *Config) DatabaseURL() string {
	if c.DBDatabase == "" {
		return ""
	}
	u := url.URL{
		Scheme: c.DBDialect,
		Host:   c.DBHost + ":" + strconv.Itoa(c.DBPort),
		Path:   "/" + c.DBDatabase,
	}
	if c.DBUsername != "" {
		u.User = url.UserPassword(c.DBUsername, c.DBPassword)
	}
	return u.String()
}

// ProvisionURL returns the connection URL used for schema provisioning. It
// targets POSTGRES_DB when set and falls back to DB_DATABASE.
func (c *Config) ProvisionURL() string {
	cp := *c
	if c.PostgresDB != "" {
		cp.DBDatabase = c.PostgresDB
	}
	return cp.DatabaseURL()
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}
