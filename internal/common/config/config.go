package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	// コンテナイメージにtzdataが無い環境でもLIBRARY_TIMEZONEを解決できるようにする
	_ "time/tzdata"

	"github.com/uma-arai/sbcntr-library/internal/common/database"
)

type Config struct {
	DB   database.Config
	HTTP struct {
		Port string
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Library struct {
		// 1ユーザーが同時に保持できるアクティブな予約数の上限
		MaxActiveReservations int
		// 日付・時刻の入力を解釈するタイムゾーン。保存と比較はすべてUTC
		Location *time.Location
	}
	SFN struct {
		TaskToken string
	}
	EnableTracing bool
}

// LoadConfig は設定を読み込みます
func LoadConfig(taskToken string) (*Config, error) {
	cfg := &Config{
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "sbcntrapp"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "sbcntrlibrary"),
		},
		EnableTracing: false,
	}
	cfg.HTTP.Port = getEnvOrDefault("APP_PORT", "8080")
	cfg.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", "local_dev_secret")
	cfg.Auth.TokenTTL = time.Duration(getEnvAsIntOrDefault("JWT_TTL_HOURS", 24)) * time.Hour
	cfg.SFN.TaskToken = taskToken

	cfg.Library.MaxActiveReservations = getEnvAsIntOrDefault("LIBRARY_MAX_ACTIVE_RESERVATIONS", 3)
	if cfg.Library.MaxActiveReservations <= 0 {
		return nil, fmt.Errorf("LIBRARY_MAX_ACTIVE_RESERVATIONS must be positive: %d", cfg.Library.MaxActiveReservations)
	}

	loc, err := time.LoadLocation(getEnvOrDefault("LIBRARY_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("failed to load LIBRARY_TIMEZONE: %w", err)
	}
	cfg.Library.Location = loc

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Environment variable %s is not an integer, using default value", key)
	}
	return defaultValue
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
