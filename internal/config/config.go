package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	SessionSecret      string
	GinMode            string
	RedisURL           string
	AIProvider         string
	OpenAIAPIKey       string
	DeepSeekAPIKey     string
	GeminiAPIKey       string
	AITimeout          time.Duration
	CacheTTL           time.Duration
	SummaryWindowDays  int
	ScoringProfilePath string
	LogLevel           string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := env("PORT", "8080")

	listenAddr := env("LISTEN_ADDR", "")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		DatabaseDriver:     strings.ToLower(env("DATABASE_DRIVER", "sqlite")),
		DatabasePath:       env("DATABASE_PATH", "postpulse.db"),
		DatabaseDSN:        env("DATABASE_DSN", ""),
		SessionSecret:      env("SESSION_SECRET", "postpulse-dev-secret"),
		GinMode:            env("GIN_MODE", "release"),
		RedisURL:           env("REDIS_URL", ""),
		AIProvider:         env("AI_PROVIDER", ""),
		OpenAIAPIKey:       env("OPENAI_API_KEY", ""),
		DeepSeekAPIKey:     env("DEEPSEEK_API_KEY", ""),
		GeminiAPIKey:       env("GEMINI_API_KEY", ""),
		AITimeout:          envDuration("AI_TIMEOUT", 30*time.Second),
		CacheTTL:           envDuration("CACHE_TTL", 7*24*time.Hour),
		SummaryWindowDays:  envInt("SUMMARY_WINDOW_DAYS", 60),
		ScoringProfilePath: env("SCORING_PROFILE_PATH", ""),
		LogLevel:           strings.ToLower(env("LOG_LEVEL", "info")),
	}
}

func env(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// envDuration 接受 time.ParseDuration 格式或纯秒数，非法值回退默认值。
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
