package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitzomax/internal/logging"
	"bitzomax/internal/workers"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool
	DatabaseDir    string
	UploadDir      string
	TempDir        string

	FFmpegPath       string
	FFprobePath      string
	TranscodeTimeout time.Duration
	TranscodeWorkers int
	MaxUploadBytes   int64

	PreviewCutoff      float64
	SessionIdleTimeout time.Duration
	AdminPasswordHash  string
	AllowedOrigins     []string

	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string
}

// LoadEnvFile reads a .env file outside production. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if os.Getenv("APP_ENV") == "production" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logSection("CONFIGURATION")

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		MetricsPort:        getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		DatabaseDir:        getEnv("DATABASE_DIR", "/database"),
		UploadDir:          getEnv("UPLOAD_DIR", "/uploads"),
		TempDir:            getEnv("TEMP_DIR", os.TempDir()),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		TranscodeTimeout:   getEnvDuration("TRANSCODE_TIMEOUT", 10*time.Minute),
		TranscodeWorkers:   workers.ForTranscode(0),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 2<<30),
		PreviewCutoff:      getEnvFloat("PREVIEW_CUTOFF", 30),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		AdminPasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogStaticFiles:     getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:    getEnvBool("LOG_HEALTH_CHECKS", true),
	}

	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  UPLOAD_DIR:          %s", cfg.UploadDir)
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", cfg.FFprobePath)
	logging.Info("  TRANSCODE_TIMEOUT:   %v", cfg.TranscodeTimeout)
	logging.Info("  TRANSCODE_WORKERS:   %d", cfg.TranscodeWorkers)
	logging.Info("  MAX_UPLOAD_BYTES:    %d", cfg.MaxUploadBytes)
	logging.Info("  PREVIEW_CUTOFF:      %.0fs", cfg.PreviewCutoff)
	logging.Info("  SESSION_IDLE_TIMEOUT: %v", cfg.SessionIdleTimeout)
	logging.Info("  ALLOWED_ORIGINS:     %s", strings.Join(cfg.AllowedOrigins, ","))
	logging.Info("  ADMIN_PASSWORD_HASH: %s", redacted(cfg.AdminPasswordHash))
	logging.Info("  LOG_STATIC_FILES:    %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if cfg.PreviewCutoff <= 0 {
		logging.Warn("  Invalid PREVIEW_CUTOFF, using default: 30")
		cfg.PreviewCutoff = 30
	}

	logging.Info("")
	logSection("DIRECTORY SETUP")

	var err error
	if cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	if cfg.UploadDir, err = filepath.Abs(cfg.UploadDir); err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory path: %w", err)
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "bitzomax.db")

	for _, dir := range []struct{ path, name string }{
		{cfg.DatabaseDir, "database"},
		{cfg.UploadDir, "upload"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable: %s", dir.name, dir.path)
	}

	if cfg.AdminPasswordHash == "" {
		logging.Warn("  ADMIN_PASSWORD_HASH not set, admin endpoints are disabled")
		logging.Warn("  Generate one with: hashpw")
	}

	return cfg, nil
}

func redacted(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "(set)"
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
