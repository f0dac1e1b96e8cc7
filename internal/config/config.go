package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingSecret = errors.New("missing required secret")

type Config struct {
	Env         string `yaml:"env"`
	Port        int    `yaml:"port"`
	StoreDriver string `yaml:"storeDriver"`
	DBURL       string `yaml:"dbUrl"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	// key material
	EncryptionKey string `yaml:"encryptionKey"`
	SigningSecret string `yaml:"signingSecret"`

	JWTSecret           string `yaml:"jwtSecret"`
	JWTAccessTTLMinutes int    `yaml:"jwtAccessTtlMinutes"`

	MailDriver         string `yaml:"mailDriver"`
	SMTPHost           string `yaml:"smtpHost"`
	SMTPPort           int    `yaml:"smtpPort"`
	SMTPUsername       string `yaml:"smtpUsername"`
	SMTPPassword       string `yaml:"smtpPassword"`
	MailFrom           string `yaml:"mailFrom"`
	MailTimeoutSeconds int    `yaml:"mailTimeoutSeconds"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	MaxBodyBytes       int64    `yaml:"maxBodyBytes"`

	TracingEnabled bool   `yaml:"tracingEnabled"`
	OTLPEndpoint   string `yaml:"otlpEndpoint"`

	StaticDir string `yaml:"staticDir"`
}

// Load reads .env (if present), then the optional CONFIG_FILE yaml, then the
// process environment. Later sources win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "err", err)
	}

	base := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := LoadFile(path, base)
		if err != nil {
			slog.Warn("could not load config file", "path", path, "err", err)
		} else {
			base = fileCfg
		}
	}

	return fromEnv(base)
}

func Defaults() Config {
	return Config{
		Env:                 "dev",
		Port:                8080,
		StoreDriver:         "memory",
		DBURL:               buildDBURL(),
		JWTAccessTTLMinutes: 60,
		MailDriver:          "log",
		SMTPHost:            "smtp.gmail.com",
		SMTPPort:            587,
		MailTimeoutSeconds:  10,
		CORSAllowedOrigins:  []string{"*"},
		RateLimitPerMinute:  30,
		MaxBodyBytes:        1 << 20,
		OTLPEndpoint:        "localhost:4317",
	}
}

func fromEnv(base Config) Config {
	cfg := base

	cfg.Env = getEnv("APP_ENV", base.Env)
	cfg.Port = getEnvInt("PORT", base.Port)
	cfg.StoreDriver = getEnv("STORE_DRIVER", base.StoreDriver)
	cfg.DBURL = getEnv("DATABASE_URL", base.DBURL)

	cfg.RedisAddr = getEnv("REDIS_ADDR", base.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", base.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", base.RedisDB)

	cfg.EncryptionKey = getEnv("ENCRYPTION_KEY", base.EncryptionKey)
	cfg.SigningSecret = getEnv("SIGNING_SECRET", base.SigningSecret)

	cfg.JWTSecret = getEnv("JWT_SECRET", base.JWTSecret)
	cfg.JWTAccessTTLMinutes = getEnvInt("JWT_ACCESS_TTL_MINUTES", base.JWTAccessTTLMinutes)

	cfg.MailDriver = getEnv("MAIL_DRIVER", base.MailDriver)
	cfg.SMTPHost = getEnv("SMTP_HOST", base.SMTPHost)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", base.SMTPPort)
	// EMAIL / PASSWORD are the names older deployments used
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", getEnv("EMAIL", base.SMTPUsername))
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", getEnv("PASSWORD", base.SMTPPassword))
	cfg.MailFrom = getEnv("MAIL_FROM", base.MailFrom)
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUsername
	}
	cfg.MailTimeoutSeconds = getEnvInt("MAIL_TIMEOUT_SECONDS", base.MailTimeoutSeconds)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", base.RateLimitPerMinute)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(base.MaxBodyBytes)))

	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", base.TracingEnabled)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", base.OTLPEndpoint)

	cfg.StaticDir = getEnv("STATIC_DIR", base.StaticDir)

	return cfg
}

// Validate rejects configurations that would silently lose data in prod.
// Outside prod, empty key material is allowed and replaced by per-process
// random keys at startup.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.MailDriver {
	case "log", "smtp":
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}

	if c.MailDriver == "smtp" && (c.SMTPHost == "" || c.MailFrom == "") {
		return fmt.Errorf("%w: SMTP_HOST and MAIL_FROM are required for smtp delivery", ErrMissingSecret)
	}

	if !c.IsProd() {
		return nil
	}

	if c.EncryptionKey == "" {
		return fmt.Errorf("%w: ENCRYPTION_KEY", ErrMissingSecret)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingSecret)
	}
	// the log mailer reports success without delivering anything
	if c.MailDriver == "log" {
		return errors.New("MAIL_DRIVER=log is not allowed in prod")
	}

	return nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func (c Config) MailTimeout() time.Duration {
	return time.Duration(c.MailTimeoutSeconds) * time.Second
}

func (c Config) JWTAccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "securedata")
	pass := getEnv("DB_PASSWORD", "securedata")
	name := getEnv("DB_NAME", "securedata")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
