// Package config holds the immutable process configuration, read once at startup.
package config

import (
	"os"
	"strings"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	KeyPairPath string

	UploadRoot        string
	AllowedExtensions []string

	BlacklistEnabled bool
	RedisAddr        string
	RedisPassword    string

	MailgunAPIKey string
	MailgunDomain string

	Environment string
	LogLevel    string
	VerifyEmail bool
}

// Load reads the configuration from the environment. Defaults keep a local
// development setup working without a .env file.
func Load() *Config {
	return &Config{
		Port:        getenv("PORT", "8080"),
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      os.Getenv("DB_PORT"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASS"),
		DBName:      os.Getenv("DB_NAME"),
		KeyPairPath: getenv("KEY_PAIR_PATH", "keypair.bin"),

		UploadRoot:        getenv("UPLOAD_ROOT", "static/images"),
		AllowedExtensions: splitCSV(getenv("ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif")),

		BlacklistEnabled: getenv("JWT_BLACKLIST_ENABLED", "true") == "true",
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),

		MailgunAPIKey: os.Getenv("MAILGUN_API_KEY"),
		MailgunDomain: getenv("MAILGUN_DOMAIN", "mail.imago.app"),

		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		VerifyEmail: os.Getenv("VERIFY_EMAIL") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
