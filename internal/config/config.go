package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr     string
	MySQLDSN       string
	TimeLocation   *time.Location
	RequestTimeout time.Duration

	GeminiAPIKey  string
	GeminiBaseURL string
	ScriptModel   string
	ImageModel    string
	ImageTimeout  time.Duration

	WelcomeCredits  int
	AdRewardCredits int
	DailyAdLimit    int
	MinAdWatch      time.Duration
	MinPanels       int
	MaxPanels       int
	SessionTTL      time.Duration

	TossClientKey     string
	PaymentSuccessURL string
	PaymentFailURL    string

	AdminUsername string
	AdminPassword string

	OpsTelegramToken  string
	OpsTelegramChatID int64

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	loadEnvFile()

	cfg := Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		ScriptModel:       getEnv("GEMINI_SCRIPT_MODEL", "gemini-2.0-flash"),
		ImageModel:        getEnv("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-exp"),
		ImageTimeout:      time.Second * time.Duration(getInt("IMAGE_TIMEOUT_SECONDS", 90)),
		WelcomeCredits:    getInt("WELCOME_CREDITS", 5),
		AdRewardCredits:   getInt("AD_REWARD_CREDITS", 2),
		DailyAdLimit:      getInt("DAILY_AD_LIMIT", 5),
		MinAdWatch:        time.Second * time.Duration(getInt("MIN_AD_WATCH_SECONDS", 15)),
		MinPanels:         getInt("MIN_PANELS", 2),
		MaxPanels:         getInt("MAX_PANELS", 20),
		SessionTTL:        time.Hour * time.Duration(getInt("SESSION_TTL_HOURS", 720)),
		TossClientKey:     getEnv("TOSS_CLIENT_KEY", ""),
		PaymentSuccessURL: getEnv("PAYMENT_SUCCESS_URL", "/payment/success"),
		PaymentFailURL:    getEnv("PAYMENT_FAIL_URL", "/payment/fail"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "change-me"),
		OpsTelegramChatID: getInt64("OPS_TELEGRAM_CHAT_ID", 0),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "panels"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpsTelegramToken = os.Getenv("OPS_TELEGRAM_TOKEN")

	// Day boundaries for the ad-reward window use the server's zone, never
	// the client clock. Defaults to UTC.
	locName := getEnv("TIME_LOCATION", "UTC")
	loc, err := time.LoadLocation(locName)
	if err != nil {
		return Config{}, fmt.Errorf("load time location %q: %w", locName, err)
	}
	cfg.TimeLocation = loc

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.MinPanels < 1 || cfg.MaxPanels < cfg.MinPanels {
		return Config{}, fmt.Errorf("invalid panel bounds: min=%d max=%d", cfg.MinPanels, cfg.MaxPanels)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first .env file it finds. A missing file is fine;
// production deployments pass real environment variables.
func loadEnvFile() {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err == nil {
			return
		}
	}
}

// Today formats the current calendar date in the configured reference zone.
func (c Config) Today(now time.Time) string {
	return now.In(c.TimeLocation).Format("2006-01-02")
}
