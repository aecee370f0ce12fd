package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/proxylist"
)

const maxGeminiKeys = 10

type Config struct {
	ListenPort      string        `validate:"required"` // ex: ":8080"
	ShutdownTimeout time.Duration `validate:"gt=0"`     // ex: 30s, also bounds the wait for running jobs
	RequestTimeout  time.Duration `validate:"gt=0"`     // per HTTP request, covers synchronous checks

	LogLevel  string `validate:"oneof=debug info warn error"`
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Location *time.Location `validate:"required"` // zone for specific_times and summary times

	// Record store
	StoreDriver string `validate:"oneof=sqlite postgres memory"`
	DatabaseURL string `validate:"required_unless=StoreDriver memory"` // file path for sqlite, DSN for postgres

	// Files
	ArtifactsDir string `validate:"required"`
	PromptsFile  string // empty keeps prompts in memory only
	SeedFile     string // optional users/targets file

	// Scheduling
	DueCheckCron       string        `validate:"required"`
	SummaryCron        string        `validate:"required"`
	SummaryWindow      time.Duration `validate:"gt=0"`
	SeedReloadInterval time.Duration `validate:"gt=0"`
	RetentionDays      int           `validate:"gte=1"`
	RetentionInterval  time.Duration `validate:"gt=0"`

	// Work queue
	WorkerConcurrency int           `validate:"gte=1,lte=64"`
	DedupTTL          time.Duration `validate:"gt=0"`

	// Fetching and capture
	FetchTimeout       time.Duration `validate:"gt=0"`
	FetchAttempts      int           `validate:"gte=1"`
	ScreenshotTimeout  time.Duration `validate:"gt=0"`
	ScreenshotAttempts int           `validate:"gte=1"`
	ChromePath         string        // optional, chromedp finds Chrome otherwise
	BackupProxy        string        `validate:"omitempty,url"`
	ProxyListURL       string        `validate:"omitempty,url"` // empty disables the public proxy list

	// AI
	GeminiKeys    []string
	GeminiModel   string `validate:"required"`
	AnthropicKey  string
	ClaudeModel   string `validate:"required"`
	TextGenerator string `validate:"oneof=auto gemini claude none"`

	// Delivery
	SMTPHost        string
	SMTPPort        int `validate:"gte=1,lte=65535"`
	SMTPUser        string
	SMTPPass        string
	SMTPFrom        string `validate:"omitempty,email"`
	TelegramAPIBase string `validate:"url"`
	TelegramToken   string // fallback bot for users without their own
	TelegramChatID  string

	// Redis
	RedisURL            string        // redis://..., takes precedence over RedisAddr
	RedisAddr           string        `validate:"required_without=RedisURL"`
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           `validate:"gte=0"`
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	// Access
	AdminKey     string   // required by admin endpoints; empty disables them
	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers
	RateBurst    int      `validate:"gte=1"`
	RatePerMin   int      `validate:"gte=1"`
}

// Load reads the environment and panics on any invalid setting.
func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PAGEWATCH_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("PAGEWATCH_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:  mustDuration("PAGEWATCH_REQUEST_TIMEOUT", 5*time.Minute),

		// Logging
		LogLevel:  getenv("PAGEWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PAGEWATCH_PRETTY_LOG", logger.IsTerminal()),

		Location: mustLocation("PAGEWATCH_TIMEZONE", "UTC"),

		// Record store
		StoreDriver: getenv("PAGEWATCH_STORE", "sqlite"),
		DatabaseURL: getenv("PAGEWATCH_DATABASE_URL", "data/pagewatch.db"),

		// Files
		ArtifactsDir: getenv("PAGEWATCH_ARTIFACTS_DIR", "data/artifacts"),
		PromptsFile:  getenvAllowEmpty("PAGEWATCH_PROMPTS_FILE", "data/prompts.toml"),
		SeedFile:     getenv("PAGEWATCH_SEED_FILE", ""),

		// Scheduling
		DueCheckCron:       getenv("PAGEWATCH_DUE_CHECK_CRON", "*/10 * * * *"),
		SummaryCron:        getenv("PAGEWATCH_SUMMARY_CRON", "*/10 * * * *"),
		SummaryWindow:      mustDuration("PAGEWATCH_SUMMARY_WINDOW", 10*time.Minute),
		SeedReloadInterval: mustDuration("PAGEWATCH_SEED_RELOAD_INTERVAL", time.Hour),
		RetentionDays:      getenvInt("RETENTION_DAYS", 30),
		RetentionInterval:  mustDuration("PAGEWATCH_RETENTION_INTERVAL", 24*time.Hour),

		// Work queue
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 4),
		DedupTTL:          mustDuration("PAGEWATCH_DEDUP_TTL", time.Hour),

		// Fetching and capture
		FetchTimeout:       mustDuration("PAGEWATCH_FETCH_TIMEOUT", 15*time.Second),
		FetchAttempts:      getenvInt("PAGEWATCH_FETCH_ATTEMPTS", 3),
		ScreenshotTimeout:  mustDuration("SCREENSHOT_TIMEOUT", 60*time.Second),
		ScreenshotAttempts: getenvInt("PAGEWATCH_SCREENSHOT_ATTEMPTS", 3),
		ChromePath:         getenv("CHROME_PATH", ""),
		BackupProxy:        getenv("BACKUP_PROXY", ""),
		ProxyListURL:       getenvAllowEmpty("PROXY_LIST_URL", proxylist.DefaultURL),

		// AI
		GeminiKeys:    geminiKeys(),
		GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		AnthropicKey:  getenv("ANTHROPIC_API_KEY", ""),
		ClaudeModel:   getenv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		TextGenerator: getenv("PAGEWATCH_TEXT_GENERATOR", "auto"),

		// Delivery
		SMTPHost:        getenv("SMTP_HOST", ""),
		SMTPPort:        getenvInt("SMTP_PORT", 587),
		SMTPUser:        getenv("SMTP_USER", ""),
		SMTPPass:        getenv("SMTP_PASS", ""),
		SMTPFrom:        getenv("SMTP_FROM", ""),
		TelegramAPIBase: getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:  getenv("TELEGRAM_CHAT_ID", ""),

		// Redis settings
		RedisURL:            getenv("REDIS_URL", ""),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("REDIS_USERNAME", ""),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AdminKey:     getenv("ADMIN_KEY", ""),
		AllowedHosts: splitAndTrim(getenv("PAGEWATCH_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("PAGEWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("PAGEWATCH_TRUST_PROXY", false),
		RateBurst:    getenvInt("PAGEWATCH_RATE_BURST", 20),
		RatePerMin:   getenvInt("PAGEWATCH_RATE_PER_MIN", 60),
	}

	if cfg.StoreDriver == "postgres" {
		cfg.DatabaseURL = requireEnv("PAGEWATCH_DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid configuration: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Validate checks the struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.TextGenerator == "gemini" && len(c.GeminiKeys) == 0 {
		return fmt.Errorf("PAGEWATCH_TEXT_GENERATOR=gemini needs GEMINI_API_KEY")
	}
	if c.TextGenerator == "claude" && c.AnthropicKey == "" {
		return fmt.Errorf("PAGEWATCH_TEXT_GENERATOR=claude needs ANTHROPIC_API_KEY")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	const redacted = "***REDACTED***"
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cp.RedisPassword)
	mask(&cp.RedisUser)
	mask(&cp.RedisURL)
	mask(&cp.SMTPPass)
	mask(&cp.AnthropicKey)
	mask(&cp.TelegramToken)
	mask(&cp.AdminKey)
	if cp.StoreDriver == "postgres" {
		mask(&cp.DatabaseURL)
	}
	cp.GeminiKeys = make([]string, len(c.GeminiKeys))
	for i := range cp.GeminiKeys {
		cp.GeminiKeys[i] = redacted
	}
	return cp
}

// geminiKeys collects GEMINI_API_KEY and GEMINI_API_KEY_1..10 in that order.
func geminiKeys() []string {
	var keys []string
	if k := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); k != "" {
		keys = append(keys, k)
	}
	for i := 1; i <= maxGeminiKeys; i++ {
		if k := strings.TrimSpace(os.Getenv("GEMINI_API_KEY_" + strconv.Itoa(i))); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty returns def only when key is unset, so an explicit empty
// value can switch a feature off.
func getenvAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func mustLocation(key, def string) *time.Location {
	name := getenv(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid time zone for %s: %s", key, name))
	}
	return loc
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
