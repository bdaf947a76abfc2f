// Package config はアプリケーション設定の読み込みを提供する。
// プロセス全体の設定は環境変数から、監視対象プロバイダーの一覧は
// YAMLファイルから起動時に1回読み込み、イミュータブルとして扱う。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
type Config struct {
	// Providers
	ProvidersFile string

	// Polling（プロバイダー側で上書き可能なグローバルデフォルト）
	PollInterval time.Duration
	FailureDelay time.Duration
	MaxDelay     time.Duration

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Shutdown
	ShutdownTimeout time.Duration

	// Sinks
	SlackToken     string
	SlackChannel   string
	WebhookURL     string
	WebhookRate    float64
	EventLogFile   string

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ProvidersFile = os.Getenv("PROVIDERS_FILE")
	if cfg.ProvidersFile == "" {
		return nil, fmt.Errorf("required environment variables are not set: [PROVIDERS_FILE]")
	}

	// Optional fields with defaults
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 30*time.Second)
	cfg.FailureDelay = getEnvDuration("FAILURE_DELAY", 2*time.Second)
	cfg.MaxDelay = getEnvDuration("MAX_DELAY", 5*time.Minute)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.SlackToken = os.Getenv("SLACK_TOKEN")
	cfg.SlackChannel = os.Getenv("SLACK_CHANNEL")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.WebhookRate = getEnvFloat("WEBHOOK_RATE_PER_SEC", 5)
	cfg.EventLogFile = os.Getenv("EVENT_LOG_FILE")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
