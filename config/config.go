package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const DefaultSystemPrompt = "You are VAI, a friendly and expert virtual assistant for Filipino VAs. Be concise, helpful, and encouraging. Respond in English."

type Config struct {
	Env         string   `env:"GO_ENV" envDefault:"production"`
	Port        string   `env:"PORT" envDefault:"8080"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Supabase SupabaseConfig
	GCP      GCPConfig

	Assistant struct {
		SystemPrompt string        `env:"ASSISTANT_SYSTEM_PROMPT"`
		Timeout      time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"60s"`
	}

	Cleanup struct {
		Workers     int    `env:"CLEANUP_WORKERS" envDefault:"2"`
		Stream      string `env:"CLEANUP_STREAM" envDefault:"storage:cleanup"`
		Group       string `env:"CLEANUP_GROUP" envDefault:"storage-cleanup"`
		MaxAttempts int    `env:"CLEANUP_MAX_ATTEMPTS" envDefault:"5"`
	}
}

type PostgresConfig struct {
	URI string `env:"POSTGRES_URI,required"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,required"`
	DB          string `env:"MONGO_DB" envDefault:"vaihub"`
	ForceTLS    bool   `env:"MONGO_FORCE_TLS_CONFIG"`
	InsecureTLS bool   `env:"MONGO_INSECURE_TLS"`
}

type RedisConfig struct {
	// host:port or a redis:// / rediss:// URL
	Addr string `env:"REDIS_ADDR,required"`
}

type SupabaseConfig struct {
	URL            string `env:"SUPABASE_URL,required"`
	AnonKey        string `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY,required"`
	JWTSecret      string `env:"SUPABASE_JWT_SECRET,required"`
	JWTIssuer      string `env:"SUPABASE_JWT_ISSUER"`
	JWTAudience    string `env:"SUPABASE_JWT_AUDIENCE"`
}

type GCPConfig struct {
	ProjectID       string `env:"GCP_PROJECT_ID,required"`
	Location        string `env:"GCP_LOCATION" envDefault:"us-central1"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS_FILE"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	ServicesBucket  string `env:"SERVICES_BUCKET" envDefault:"services"`
	AvatarsBucket   string `env:"AVATARS_BUCKET" envDefault:"avatars"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Assistant.SystemPrompt == "" {
		cfg.Assistant.SystemPrompt = DefaultSystemPrompt
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
