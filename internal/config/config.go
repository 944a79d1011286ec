// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stockscan/internal/logger"
)

const (
	DefaultDetectionURL     = "http://localhost:5000/api/detect"
	DefaultSimulatedLatency = 2 * time.Second
	DefaultMQTTTopic        = "stockscan/notifications"
)

// Config is the full runtime configuration. It is built once in main and
// handed to constructors; nothing below main reads the environment.
type Config struct {
	Environment   string
	ServerHost    string
	ServerPort    string
	AllowedOrigin string

	Logger    logger.Config
	Detection DetectionConfig
	MQTT      MQTTConfig

	CatalogFile        string
	CameraSource       string // "synthetic", "none" or a directory of frames
	HistoryDBPath      string // empty disables scan history
	HistoryRetention   time.Duration
	SessionIdleTimeout time.Duration
}

type DetectionConfig struct {
	URL              string
	UseRealAPI       bool
	Timeout          time.Duration // zero means no timeout
	SimulatedLatency time.Duration
	SimulatedMode    string // "all" or "random"
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(environment())))
}

func environment() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return env
}

// Helper: log which environment is running
func LogCurrentEnvironment(cfg *Config) {
	if cfg.IsProduction() {
		logger.LogInfo("Running in production environment")
	} else {
		logger.LogInfo("Running in %s environment", cfg.Environment)
	}

	if cfg.Detection.UseRealAPI {
		logger.LogInfo("Detection endpoint: %s", cfg.Detection.URL)
	} else {
		logger.LogInfo("Real detection disabled. Using simulated results (%s mode, %v latency)",
			cfg.Detection.SimulatedMode, cfg.Detection.SimulatedLatency)
	}
	if cfg.HistoryDBPath == "" {
		logger.LogWarn("HISTORY_DB_PATH not set, scan history and dashboard activity are disabled")
	}
	if cfg.AllowedOrigin == "*" {
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins)")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads the .env file if present. System environment always wins.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// Load builds a Config from the current environment.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   environment(),
		ServerHost:    getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort:    getEnv("SERVER_PORT", "5051"),
		AllowedOrigin: GetEnvBasedSetting("ALLOWED_ORIGIN"),
		Logger:        LoggerConfig(),
		CatalogFile:   os.Getenv("CATALOG_FILE"),
		CameraSource:  getEnv("CAMERA_SOURCE", "synthetic"),
		HistoryDBPath: os.Getenv("HISTORY_DB_PATH"),
		Detection: DetectionConfig{
			URL: getEnv("DETECTION_API_URL", DefaultDetectionURL),
			// Real detection stays on unless explicitly switched off.
			UseRealAPI:    os.Getenv("USE_REAL_API") != "false",
			SimulatedMode: strings.ToLower(getEnv("SIMULATED_MODE", "all")),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    getEnv("MQTT_TOPIC", DefaultMQTTTopic),
			ClientID: getEnv("MQTT_CLIENT_ID", "stockscan"),
		},
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}

	var err error
	if cfg.Detection.Timeout, err = getDuration("DETECTION_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.Detection.SimulatedLatency, err = getDuration("SIMULATED_LATENCY", DefaultSimulatedLatency); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}

	retentionDays := 30
	if v := os.Getenv("HISTORY_RETENTION_DAYS"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 {
			return nil, fmt.Errorf("invalid HISTORY_RETENTION_DAYS %q", v)
		}
		retentionDays = n
	}
	cfg.HistoryRetention = time.Duration(retentionDays) * 24 * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Detection.SimulatedMode {
	case "all", "random":
	default:
		return fmt.Errorf("invalid SIMULATED_MODE %q: expected all or random", c.Detection.SimulatedMode)
	}
	if c.Detection.UseRealAPI && c.Detection.URL == "" {
		return fmt.Errorf("DETECTION_API_URL is empty while USE_REAL_API is enabled")
	}
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT is empty")
	}
	return nil
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "stockscan_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		NoColor:       os.Getenv("NO_COLOR") != "",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getDuration accepts Go duration strings ("750ms", "2s") or whole seconds.
func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
