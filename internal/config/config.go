// Package config loads application configuration: flag > environment
// variable > .env file > default, matching internal/config/config.go's
// priority order. The .env loading delegates to github.com/joho/godotenv
// rather than a hand-rolled line parser.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the server depends on.
type Config struct {
	Addr     string // primary net/http server address, WS_PORT
	LogLevel string
	Env      string

	KeepalivePingInt time.Duration

	StunServer string
	StunPort   int
	TurnServer string
	TurnPort   int
	TurnUser   string
	TurnPass   string

	SIPBindAddress string // empty disables the VoIP gateway
	SIPPort        int
	SIPDomain      string

	AdminAddr      string
	AdminAPIKey    string
	AdminJWTSecret string

	DatabaseURL string // empty disables the audit trail

	RecordingEnabled bool
	RecordingPath    string
}

// Load parses and returns the application configuration.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// Missing .env is normal in production; godotenv.Load errors both
		// when the file is missing and when it can't be parsed, and both
		// are ignored to keep startup resilient.
		_ = err
	}

	defaultAddr := getEnv("SERVER_ADDR", ":8080")
	if port := getEnv("WS_PORT", ""); port != "" {
		defaultAddr = ":" + port
	}
	addr := flag.String("addr", getEnv("WS_PORT_ADDR", defaultAddr), "primary http/ws service address")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	env := flag.String("env", getEnv("ENVIRONMENT", "development"), "environment (development, staging, production)")
	pingInt := flag.String("keepalive-ping", getEnv("KEEPALIVE_PING", "30"), "keepalive ping interval in seconds")
	flag.Parse()

	pingIntSecs, _ := strconv.ParseInt(*pingInt, 10, 64)
	if pingIntSecs <= 0 {
		pingIntSecs = 30
	}

	return &Config{
		Addr:     *addr,
		LogLevel: strings.ToLower(*logLevel),
		Env:      strings.ToLower(*env),

		KeepalivePingInt: time.Duration(pingIntSecs) * time.Second,

		StunServer: getEnv("STUN_SERVER", "0.0.0.0"),
		StunPort:   getEnvInt("STUN_PORT", 3478),
		TurnServer: getEnv("TURN_SERVER", "0.0.0.0"),
		TurnPort:   getEnvInt("TURN_PORT", 3478),
		TurnUser:   getEnv("TURN_USERNAME", "webrtc"),
		TurnPass:   getEnv("TURN_PASSWORD", "webrtc"),

		SIPBindAddress: getEnv("SIP_BIND_ADDRESS", ""),
		SIPPort:        getEnvInt("SIP_PORT", 5060),
		SIPDomain:      getEnv("SIP_DOMAIN", ""),

		AdminAddr:      getEnv("ADMIN_ADDR", ":9090"),
		AdminAPIKey:    getEnv("ADMIN_API_KEY", "admin-dev-key"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", "dev-admin-jwt-secret"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RecordingEnabled: getEnvBool("RECORDING_ENABLED", false),
		RecordingPath:    getEnv("RECORDING_PATH", "./recordings"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
