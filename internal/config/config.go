package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds everything the liveness server needs: HTTP port,
// storage backends, the mail account used for outbound alerts and the
// sweep period of the reconciliation loop.
type ServerConfig struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string

	// SecretKey derives the AES key that encrypts emergency contacts at rest.
	SecretKey string

	SMTPHost     string
	SMTPPort     int
	SystemEmail  string
	SystemPasswd string

	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

// AgentConfig holds the device-side daemon configuration.
type AgentConfig struct {
	ServerURL string
	StateFile string

	UserName       string
	TimeoutHours   int
	EmergencyEmail string

	TickInterval time.Duration
	WarningLead  time.Duration

	// StepReadTimeout bounds the best-effort step-counter read per tick.
	StepReadTimeout time.Duration

	LogLevel  string
	LogFormat string
}

func LoadServerConfig() (*ServerConfig, error) {
	sweepStr := getEnv("SWEEP_INTERVAL", "60s")
	sweep, err := time.ParseDuration(sweepStr)
	if err != nil {
		return nil, errors.New("invalid SWEEP_INTERVAL format")
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, errors.New("invalid SMTP_PORT format")
	}

	cfg := &ServerConfig{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		SecretKey:     getEnv("SECRET_KEY", "vigil-secret-default-key"),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      smtpPort,
		SystemEmail:   os.Getenv("SYSTEM_EMAIL"),
		SystemPasswd:  os.Getenv("SYSTEM_PASSWORD"),
		SweepInterval: sweep,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func LoadAgentConfig() (*AgentConfig, error) {
	tick, err := time.ParseDuration(getEnv("TICK_INTERVAL", "15m"))
	if err != nil {
		return nil, errors.New("invalid TICK_INTERVAL format")
	}

	lead, err := time.ParseDuration(getEnv("WARNING_LEAD", "60m"))
	if err != nil {
		return nil, errors.New("invalid WARNING_LEAD format")
	}

	stepTimeout, err := time.ParseDuration(getEnv("STEP_READ_TIMEOUT", "3s"))
	if err != nil {
		return nil, errors.New("invalid STEP_READ_TIMEOUT format")
	}

	timeoutHours, err := strconv.Atoi(getEnv("TIMEOUT_HOURS", "24"))
	if err != nil || timeoutHours <= 0 {
		return nil, errors.New("invalid TIMEOUT_HOURS")
	}

	cfg := &AgentConfig{
		ServerURL:       getEnv("SERVER_URL", "http://localhost:8080"),
		StateFile:       getEnv("STATE_FILE", defaultStateFile()),
		UserName:        getEnv("USER_NAME", "User"),
		TimeoutHours:    timeoutHours,
		EmergencyEmail:  os.Getenv("EMERGENCY_EMAIL"),
		TickInterval:    tick,
		WarningLead:     lead,
		StepReadTimeout: stepTimeout,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
	}

	if cfg.WarningLead >= time.Duration(cfg.TimeoutHours)*time.Hour {
		return nil, errors.New("WARNING_LEAD must be shorter than the timeout")
	}

	return cfg, nil
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vigil-state.json"
	}
	return fmt.Sprintf("%s/.vigil/state.json", home)
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
