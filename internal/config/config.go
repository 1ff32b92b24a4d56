package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSalt = "dev-salt-change-in-production"

type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	LogLevel  string
	LogFormat string

	JWTSecret  string
	SessionTTL time.Duration
	AdminToken string

	OIDCIssuerURL string
	OIDCClientID  string

	TurnstileSecret    string
	TurnstileVerifyURL string
	TurnstileRequired  bool

	RedisURL string

	SenderHashSalt string

	RateLimitMax           int
	RateLimitWindow        time.Duration
	RateLimitSweepInterval time.Duration

	UsernameMinLength int
	UsernameMaxLength int
	MessageMaxLength  int

	ContentDenylistFile string

	StoreTimeout   time.Duration
	CaptchaTimeout time.Duration
	RedisTimeout   time.Duration
}

// CaptchaEnabled reports whether a Turnstile secret is configured.
func (c Config) CaptchaEnabled() bool { return c.TurnstileSecret != "" }

// OIDCEnabled reports whether sign-in through the identity provider is wired.
func (c Config) OIDCEnabled() bool { return c.OIDCIssuerURL != "" && c.OIDCClientID != "" }

func (c Config) IsProduction() bool { return c.Env == "production" }

func Load() (Config, error) {
	_ = godotenv.Load()

	env := getenv("APP_ENV", "development")
	cfg := Config{
		Env:                  env,
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		TrustProxyHeaders:    getenv("TRUST_PROXY_HEADERS", "false") == "true",

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", defaultLogFormat(env)),

		AdminToken: getenv("ADMIN_TOKEN", ""),

		OIDCIssuerURL: getenv("OIDC_ISSUER_URL", ""),
		OIDCClientID:  getenv("OIDC_CLIENT_ID", ""),

		TurnstileSecret:    getenv("TURNSTILE_SECRET_KEY", ""),
		TurnstileVerifyURL: getenv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		TurnstileRequired:  getenv("TURNSTILE_REQUIRED", "false") == "true",

		RedisURL: getenv("REDIS_URL", ""),

		SenderHashSalt: getenv("SENDER_HASH_SALT", getenv("IP_SALT", defaultSalt)),

		ContentDenylistFile: getenv("CONTENT_DENYLIST_FILE", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 5); err != nil {
		return cfg, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", 10*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RateLimitSweepInterval, err = getDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.UsernameMinLength, err = getInt("USERNAME_MIN_LENGTH", 3); err != nil {
		return cfg, err
	}
	if cfg.UsernameMaxLength, err = getInt("USERNAME_MAX_LENGTH", 20); err != nil {
		return cfg, err
	}
	if cfg.MessageMaxLength, err = getInt("MESSAGE_MAX_LENGTH", 280); err != nil {
		return cfg, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.CaptchaTimeout, err = getDuration("CAPTCHA_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 500*time.Millisecond); err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.UsernameMinLength <= 0 || c.UsernameMinLength > c.UsernameMaxLength {
		return errors.New("invalid username length bounds")
	}
	if c.MessageMaxLength <= 0 {
		return errors.New("message max length must be positive")
	}
	if c.IsProduction() && c.SenderHashSalt == defaultSalt {
		return errors.New("SENDER_HASH_SALT must be set in production")
	}
	return nil
}

func defaultLogFormat(env string) string {
	if env == "development" {
		return "text"
	}
	return "json"
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid int in " + key + ": " + v)
	}
	return n, nil
}

// getDuration accepts Go duration strings ("10m") or bare milliseconds.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New("invalid duration in " + key + ": " + v)
	}
	return d, nil
}
