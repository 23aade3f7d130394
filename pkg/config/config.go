package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	LogLevel    string

	ServerPort int

	DBDriver    string
	DatabaseURL string

	JWTAccessSecret []byte
	AccessTokenTTL  time.Duration

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	RedisAddr string

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFrom         string
	TwilioWhatsAppFrom string
	TwilioBaseURL      string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	PaymentBaseURL  string
	PaymentKeyID    string
	PaymentSecret   string
	PaymentCurrency string

	SchedulerInterval time.Duration
	SchedulerEnabled  bool
	Workers           int
	WorkerBuffer      int

	AdminPhone         string
	DefaultCountryCode string
}

// Load reads .env (when present) and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("notice: .env not loaded: %v", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "bloombox"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		ServerPort: EnvIntDefault("SERVER_PORT", 8080),

		DBDriver:    EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: []byte(os.Getenv("JWT_SECRET")),
		AccessTokenTTL:  EnvDurationDefault("ACCESS_TOKEN_TTL", 24*time.Hour),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:         os.Getenv("TWILIO_FROM"),
		TwilioWhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
		TwilioBaseURL:      EnvDefault("TWILIO_BASE_URL", "https://api.twilio.com"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     EnvIntDefault("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     EnvDefault("SMTP_FROM", "orders@bloombox.in"),

		PaymentBaseURL:  EnvDefault("PAYMENT_BASE_URL", "https://api.razorpay.com"),
		PaymentKeyID:    os.Getenv("PAYMENT_KEY_ID"),
		PaymentSecret:   os.Getenv("PAYMENT_KEY_SECRET"),
		PaymentCurrency: EnvDefault("PAYMENT_CURRENCY", "INR"),

		SchedulerInterval: EnvDurationDefault("SCHEDULER_INTERVAL", 30*time.Minute),
		SchedulerEnabled:  EnvBoolDefault("SCHEDULER_ENABLED", true),
		Workers:           EnvIntDefault("WORKERS", 4),
		WorkerBuffer:      EnvIntDefault("WORKER_BUFFER", 256),

		AdminPhone:         os.Getenv("ADMIN_PHONE"),
		DefaultCountryCode: EnvDefault("DEFAULT_COUNTRY_CODE", "+91"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
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

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
