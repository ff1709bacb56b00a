// Package config собирает настройки сервера из флагов, переменных окружения PORTAL_* и .env файла.
// Приоритет: флаг, затем переменная окружения, затем значение по умолчанию.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Окружения
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const envPrefix = "PORTAL_"

// Onec настройки HTTP сервисов 1С
type Onec struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

// Twilio настройки отправки SMS
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Enabled возвращает true, если заданы все параметры Twilio
func (t Twilio) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

// Config настройки сервера
type Config struct {
	Twilio           Twilio
	Onec             Onec
	Addr             string
	DBPath           string
	Environment      string
	LogLevel         string
	FixturePath      string
	SessionTTL       time.Duration
	OTPTTL           time.Duration
	ResendCooldown   time.Duration
	JanitorInterval  time.Duration
	ExpiredRetention time.Duration // 0 означает SessionTTL
	ShutdownTimeout  time.Duration
	OTPAttempts      int
	BcryptCost       int
	MinPasswordLen   int
	RateLimit        int // запросов в минуту с одного IP на /api/auth/login*
	ShowVersion      bool
}

// Production возвращает true для production окружения
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

// SlogLevel уровень логирования
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadDotEnv загружает переменные из .env файла, не перезаписывая уже заданные.
// Отсутствие файла не является ошибкой.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// envReader читает значения по умолчанию из окружения и копит ошибки разбора
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) string(name, def string) string {
	if v, ok := e.lookup(envPrefix + name); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) int(name string, def int) int {
	raw := e.string(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return def
	}
	return v
}

func (e *envReader) duration(name string, def time.Duration) time.Duration {
	raw := e.string(name, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return def
	}
	return v
}

// Parse разбирает аргументы командной строки; lookup обычно os.LookupEnv
func Parse(args []string, lookup func(string) (string, bool), output io.Writer) (*Config, error) {
	env := &envReader{lookup: lookup}
	cfg := &Config{}

	fsFlags := flag.NewFlagSet("portal", flag.ContinueOnError)
	if output != nil {
		fsFlags.SetOutput(output)
	}

	fsFlags.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fsFlags.StringVar(&cfg.Addr, "addr", env.string("ADDR", ":8080"), "HTTP listen address")
	fsFlags.StringVar(&cfg.DBPath, "db", env.string("DB_PATH", "portal.db"), "Path to SQLite database")
	fsFlags.StringVar(&cfg.Environment, "env", env.string("ENV", EnvDevelopment), "Environment: development or production")
	fsFlags.StringVar(&cfg.LogLevel, "log-level", env.string("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fsFlags.DurationVar(&cfg.SessionTTL, "session-ttl", env.duration("SESSION_TTL", 15*time.Minute), "Login session lifetime")
	fsFlags.DurationVar(&cfg.OTPTTL, "otp-ttl", env.duration("OTP_TTL", 5*time.Minute), "SMS code lifetime")
	fsFlags.IntVar(&cfg.OTPAttempts, "otp-attempts", env.int("OTP_ATTEMPTS", 3), "Attempts per SMS code")
	fsFlags.DurationVar(&cfg.ResendCooldown, "resend-cooldown", env.duration("RESEND_COOLDOWN", 0), "Minimal interval between SMS codes, 0 disables")
	fsFlags.IntVar(&cfg.BcryptCost, "bcrypt-cost", env.int("BCRYPT_COST", bcrypt.DefaultCost), "bcrypt cost for passwords and codes")
	fsFlags.IntVar(&cfg.MinPasswordLen, "min-password-len", env.int("MIN_PASSWORD_LEN", 8), "Minimal password length")

	fsFlags.StringVar(&cfg.Onec.BaseURL, "onec-url", env.string("ONEC_URL", ""), "1C HTTP services base URL")
	fsFlags.StringVar(&cfg.Onec.User, "onec-user", env.string("ONEC_USER", ""), "1C basic auth user")
	fsFlags.StringVar(&cfg.Onec.Password, "onec-password", env.string("ONEC_PASSWORD", ""), "1C basic auth password")
	fsFlags.DurationVar(&cfg.Onec.Timeout, "onec-timeout", env.duration("ONEC_TIMEOUT", 15*time.Second), "1C request timeout")
	fsFlags.StringVar(&cfg.FixturePath, "fixtures", env.string("FIXTURES", ""), "YAML patients file used instead of 1C")

	fsFlags.StringVar(&cfg.Twilio.AccountSID, "twilio-sid", env.string("TWILIO_ACCOUNT_SID", ""), "Twilio account SID")
	fsFlags.StringVar(&cfg.Twilio.AuthToken, "twilio-token", env.string("TWILIO_AUTH_TOKEN", ""), "Twilio auth token")
	fsFlags.StringVar(&cfg.Twilio.From, "twilio-from", env.string("TWILIO_FROM", ""), "Twilio sender number")

	fsFlags.IntVar(&cfg.RateLimit, "rate-limit", env.int("RATE_LIMIT", 30), "Login requests per minute per IP")
	fsFlags.DurationVar(&cfg.JanitorInterval, "janitor-interval", env.duration("JANITOR_INTERVAL", time.Minute), "Expired sessions cleanup interval")
	fsFlags.DurationVar(&cfg.ExpiredRetention, "expired-retention", env.duration("EXPIRED_RETENTION", 0), "How long expired sessions are kept before cleanup, 0 means session ttl")
	fsFlags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.duration("SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown timeout")

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %w", errors.Join(env.errs...))
	}

	if err := fsFlags.Parse(args); err != nil {
		return nil, err
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Onec.BaseURL = strings.TrimSpace(cfg.Onec.BaseURL)

	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("otp ttl must be positive"))
	}
	if c.OTPTTL > c.SessionTTL {
		errs = append(errs, errors.New("otp ttl must not exceed session ttl"))
	}
	if c.OTPAttempts < 1 {
		errs = append(errs, errors.New("otp attempts must be at least 1"))
	}
	if c.ResendCooldown < 0 {
		errs = append(errs, errors.New("resend cooldown must not be negative"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.MinPasswordLen < 1 {
		errs = append(errs, errors.New("min password length must be positive"))
	}
	if c.RateLimit < 1 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.JanitorInterval <= 0 {
		errs = append(errs, errors.New("janitor interval must be positive"))
	}
	if c.ExpiredRetention < 0 {
		errs = append(errs, errors.New("expired retention must not be negative"))
	}
	if c.Onec.Timeout <= 0 {
		errs = append(errs, errors.New("1C timeout must be positive"))
	}

	if c.Onec.BaseURL != "" && c.FixturePath != "" {
		errs = append(errs, errors.New("1C url and fixtures are mutually exclusive"))
	}

	if c.Production() {
		if c.Onec.BaseURL == "" {
			errs = append(errs, errors.New("1C url is required in production"))
		}
		if !c.Twilio.Enabled() {
			errs = append(errs, errors.New("twilio credentials are required in production"))
		}
	}

	return errors.Join(errs...)
}
