package config

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultHTTPAddr = ":8080"
	defaultMySQLDSN = "root:root@tcp(localhost:3306)/vendas?parseTime=true"
	defaultRedis    = "localhost:6379"
)

const (
	MaxOpenConns    = 50
	MaxIdleConns    = 25
	ConnMaxLifetime = 5 * time.Minute
	ShutdownTimeout = 5 * time.Second
)

type Config struct {
	HTTPAddr  string
	MySQLDSN  string
	RedisAddr string
	JWTSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", defaultHTTPAddr),
		MySQLDSN:  getEnv("MYSQL_DSN", defaultMySQLDSN),
		RedisAddr: getEnv("REDIS_ADDR", defaultRedis),
		JWTSecret: os.Getenv("JWT_SECRET"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
