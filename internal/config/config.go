package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Sink names accepted by DELIVERY_SINK.
const (
	SinkLocal      = "local"
	SinkGofile     = "gofile"
	SinkTransferSh = "transfersh"
	SinkS3         = "s3"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	PublicBaseURL      string
	CORSAllowedOrigins []string
	TrustedProxies     []string `validate:"dive,cidr|ip"`
	RedisURL           string

	DeliverySink string `validate:"oneof=local gofile transfersh s3"`
	MemoDir      string `validate:"required_if=DeliverySink local"`
	MemoTitle    string `validate:"required"`
	MemoFooter   string
	MemoTimeZone string `validate:"required"`
	MemoMaxItems int    `validate:"gte=0"`

	GofileUploadURL   string `validate:"omitempty,url"`
	GofileToken       string
	TransferShURL     string `validate:"omitempty,url"`
	TransferShMaxDays int    `validate:"gte=0"`

	S3Bucket         string `validate:"required_if=DeliverySink s3"`
	S3Region         string `validate:"required_if=DeliverySink s3"`
	S3Endpoint       string `validate:"omitempty,url"`
	S3Prefix         string
	S3PublicBaseURL  string `validate:"omitempty,url"`
	S3ForcePathStyle bool
	// Static S3 credentials; when unset the SDK default chain is used.
	S3AccessKeyID     string
	S3SecretAccessKey string `validate:"required_with=S3AccessKeyID"`

	UploadTimeout       time.Duration
	CircuitMinRequests  int
	CircuitFailureRatio float64 `validate:"gte=0,lte=1"`
	CircuitOpenFor      time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	SecurityHeadersEnabled bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "5000"),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TrustedProxies:     splitAndTrim(k.String("TRUSTED_PROXIES")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),

		DeliverySink: strings.ToLower(valueOrDefault(k.String("DELIVERY_SINK"), SinkLocal)),
		MemoDir:      valueOrDefault(k.String("MEMO_DIR"), "memos"),
		MemoTitle:    valueOrDefault(k.String("MEMO_TITLE"), "Invoice"),
		MemoFooter:   valueOrDefault(k.String("MEMO_FOOTER"), "Thanks for shopping!"),
		MemoTimeZone: valueOrDefault(k.String("MEMO_TIMEZONE"), "Local"),
		MemoMaxItems: parseInt(k.String("MEMO_MAX_ITEMS"), 200),

		GofileUploadURL:   valueOrDefault(k.String("GOFILE_UPLOAD_URL"), "https://upload.gofile.io"),
		GofileToken:       strings.TrimSpace(k.String("GOFILE_TOKEN")),
		TransferShURL:     valueOrDefault(k.String("TRANSFERSH_URL"), "https://transfer.sh"),
		TransferShMaxDays: parseInt(k.String("TRANSFERSH_MAX_DAYS"), 0),

		S3Bucket:         strings.TrimSpace(k.String("S3_BUCKET")),
		S3Region:         valueOrDefault(k.String("S3_REGION"), "us-east-1"),
		S3Endpoint:       strings.TrimSpace(k.String("S3_ENDPOINT")),
		S3Prefix:         strings.Trim(strings.TrimSpace(k.String("S3_PREFIX")), "/"),
		S3PublicBaseURL:  strings.TrimRight(strings.TrimSpace(k.String("S3_PUBLIC_BASE_URL")), "/"),
		S3ForcePathStyle: parseBool(k.String("S3_FORCE_PATH_STYLE")),

		S3AccessKeyID:     strings.TrimSpace(k.String("S3_ACCESS_KEY_ID")),
		S3SecretAccessKey: strings.TrimSpace(k.String("S3_SECRET_ACCESS_KEY")),

		UploadTimeout:       parseDuration(k.String("UPLOAD_TIMEOUT"), "30s"),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 60),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),

		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "5000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Location resolves MemoTimeZone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MemoTimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New("invalid config: " + strings.Join(msgs, "; "))
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
