package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	LogMode  string
	HTTPAddr string

	BankPath     string
	FlowVariant  string
	SurveyFile   string
	ExportDir    string
	TemplatesDir string
	StaticDir    string

	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	SMTPFrom        string
	SMTPStartTLS    bool
	SMTPTimeout     time.Duration
	ReportRecipient string

	SessionStore string
	RedisAddr    string
	RedisPass    string
	SessionTTL   time.Duration

	CSRFEnforced       bool
	RateLimitPerMinute int
	CORSOrigins        []string
}

func LoadConfig() Config {
	appEnv := envOrDefault("APP_ENV", "development")

	// Implicit TLS on 465 is the default relay setup; STARTTLS is opt-in.
	smtpPort := 465
	if p := stringsToInt(os.Getenv("SMTP_PORT")); p > 0 {
		smtpPort = p
	}

	return Config{
		AppEnv:   appEnv,
		LogMode:  envOrDefault("LOG_MODE", appEnv),
		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),

		BankPath:     envOrDefault("BANK_PATH", "data/geometry_questions.json"),
		FlowVariant:  envOrDefault("FLOW_VARIANT", "extended"),
		SurveyFile:   os.Getenv("SURVEY_FILE"),
		ExportDir:    envOrDefault("EXPORT_DIR", os.TempDir()),
		TemplatesDir: envOrDefault("TEMPLATES_DIR", "web/templates"),
		StaticDir:    envOrDefault("STATIC_DIR", "web/static"),

		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        smtpPort,
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
		SMTPStartTLS:    boolOrDefault("SMTP_STARTTLS", false),
		SMTPTimeout:     time.Duration(intOrDefault("SMTP_TIMEOUT_SECONDS", 30)) * time.Second,
		ReportRecipient: os.Getenv("REPORT_RECIPIENT"),

		SessionStore: strings.ToLower(envOrDefault("SESSION_STORE", "memory")),
		RedisAddr:    envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		SessionTTL:   time.Duration(intOrDefault("SESSION_TTL_MINUTES", 120)) * time.Minute,

		CSRFEnforced:       boolOrDefault("CSRF_ENFORCED", false),
		RateLimitPerMinute: intOrDefault("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:        listOrDefault("CORS_ORIGINS", nil),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func listOrDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
