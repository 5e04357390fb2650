// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/knokvik/ratewarden/internal/core/domain"
)

const unlimitedKeyword = "unlimited"

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimiterConfig struct {
	Window    time.Duration
	Tiers     map[string]int64
	KeyPrefix string
	FailOpen  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}

	storageType := getEnv("STORAGE_TYPE", "memory")
	if storageType != "memory" && storageType != "redis" {
		return Config{}, fmt.Errorf("unsupported STORAGE_TYPE: %s", storageType)
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server: server,
		Storage: StorageConfig{
			Type:  storageType,
			Redis: redisConfig,
		},
		RateLimiter: rateLimiterConfig,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	windowMs, err := strconv.Atoi(getEnv("RATE_LIMIT_WINDOW_MS", "60000"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_WINDOW_MS: %w", err)
	}
	if windowMs <= 0 {
		return RateLimiterConfig{}, fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive, got %d", windowMs)
	}

	tiers, err := buildTierOverrides()
	if err != nil {
		return RateLimiterConfig{}, err
	}

	failOpen, err := strconv.ParseBool(getEnv("RATE_LIMIT_FAIL_OPEN", "false"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_FAIL_OPEN: %w", err)
	}

	return RateLimiterConfig{
		Window:    time.Duration(windowMs) * time.Millisecond,
		Tiers:     tiers,
		KeyPrefix: getEnv("RATE_LIMIT_KEY_PREFIX", "ratewarden:"),
		FailOpen:  failOpen,
	}, nil
}

// buildTierOverrides parte da tabela padrão e aplica overrides no formato
// NAME:LIMIT[,NAME:LIMIT...]; LIMIT aceita o literal "unlimited".
func buildTierOverrides() (map[string]int64, error) {
	tiers := map[string]int64{
		"guest": 30,
		"free":  60,
		"pro":   600,
		"admin": domain.Unbounded,
	}

	raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_TIERS"))
	if raw == "" {
		return tiers, nil
	}

	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("tier override must follow NAME:LIMIT: %s", item)
		}

		name := strings.ToLower(strings.TrimSpace(parts[0]))
		if name == "" {
			return nil, fmt.Errorf("tier override has empty name: %s", item)
		}

		rawLimit := strings.ToLower(strings.TrimSpace(parts[1]))
		if rawLimit == unlimitedKeyword {
			tiers[name] = domain.Unbounded
			continue
		}

		limit, err := strconv.ParseInt(rawLimit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid limit for tier %s: %w", name, err)
		}
		if limit <= 0 {
			return nil, fmt.Errorf("limit for tier %s must be positive, got %d", name, limit)
		}
		tiers[name] = limit
	}

	return tiers, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
