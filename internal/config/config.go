// Package config provides configuration management for framecutd.
// Values come from FRAMECUT_* environment variables, then an optional TOML
// file, then built-in defaults. A .env file in the working directory is loaded
// into the environment first without overriding variables already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8790
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "auto"
	DefaultLogMaxSizeMB    = 50
	DefaultLogMaxBackups   = 3
	DefaultDataDir         = ".framecut"
	DefaultUploadBackend   = BackendLocal
	DefaultExportWorkers   = 2
	DefaultExportQueueSize = 64
	DefaultExportStepDelay = 500 // milliseconds
	DefaultExportTimeout   = 600 // seconds
	DefaultMinIOBucket     = "framecut"
	DefaultAllowedOrigins  = "*"
	DefaultCORSMaxAge      = 3600 // seconds

	BackendLocal = "local"
	BackendMinIO = "minio"

	// Database filename
	DBFilename = "framecut.db"

	// EnvConfigFile names the TOML file when --config is not given.
	EnvConfigFile = "FRAMECUT_CONFIG"
	envPrefix     = "FRAMECUT_"
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	LogFormat() string
	LogFile() string
	LogMaxSizeMB() int
	LogMaxBackups() int
	DataDir() string
	DBPath() string
	UploadDir() string
	UploadBackend() string
	MinIO() MinIO
	ExportWorkers() int
	ExportQueueSize() int
	ExportStepDelay() time.Duration
	ExportTimeout() time.Duration
	FFprobePath() string
	AllowedOrigins() []string
	CORSMaxAge() time.Duration
}

// MinIO groups the object storage settings used when upload_backend is minio.
type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// settings mirrors the flat TOML layout. Every key can also be set as
// FRAMECUT_<KEY in upper case>; empty variables count as unset.
type settings struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
	LogFile           string `toml:"log_file"`
	LogMaxSizeMB      int    `toml:"log_max_size_mb"`
	LogMaxBackups     int    `toml:"log_max_backups"`
	DataDir           string `toml:"data_dir"`
	DBPath            string `toml:"db_path"`
	UploadDir         string `toml:"upload_dir"`
	UploadBackend     string `toml:"upload_backend"`
	ExportWorkers     int    `toml:"export_workers"`
	ExportQueueSize   int    `toml:"export_queue_size"`
	ExportStepDelayMS int    `toml:"export_step_delay_ms"`
	ExportTimeoutS    int    `toml:"export_timeout_s"`
	FFprobePath       string `toml:"ffprobe_path"`
	MinIOEndpoint     string `toml:"minio_endpoint"`
	MinIOAccessKey    string `toml:"minio_access_key"`
	MinIOSecretKey    string `toml:"minio_secret_key"`
	MinIOBucket       string `toml:"minio_bucket"`
	MinIORegion       string `toml:"minio_region"`
	MinIOUseSSL       bool   `toml:"minio_use_ssl"`
	AllowedOrigins    string `toml:"allowed_origins"`
	CORSMaxAgeS       int    `toml:"cors_max_age"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	s    settings
	file string
}

func defaults() settings {
	return settings{
		Host:              DefaultHost,
		Port:              DefaultPort,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		LogMaxSizeMB:      DefaultLogMaxSizeMB,
		LogMaxBackups:     DefaultLogMaxBackups,
		DataDir:           defaultDataDir(),
		UploadBackend:     DefaultUploadBackend,
		ExportWorkers:     DefaultExportWorkers,
		ExportQueueSize:   DefaultExportQueueSize,
		ExportStepDelayMS: DefaultExportStepDelay,
		ExportTimeoutS:    DefaultExportTimeout,
		MinIOBucket:       DefaultMinIOBucket,
		AllowedOrigins:    DefaultAllowedOrigins,
		CORSMaxAgeS:       DefaultCORSMaxAge,
	}
}

// New loads configuration without an explicit file path.
func New() (*EnvConfig, error) {
	return Load("")
}

// Load resolves configuration. path, or FRAMECUT_CONFIG when path is empty,
// names an optional TOML file; an explicitly named file must exist.
func Load(path string) (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	s := defaults()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := decodeFile(path, &s); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&s); err != nil {
		return nil, err
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &EnvConfig{s: s, file: path}, nil
}

func decodeFile(path string, s *settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(s *settings) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := os.Getenv(envPrefix + key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v := os.Getenv(envPrefix + key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err))
			return
		}
		*dst = b
	}

	str("HOST", &s.Host)
	num("PORT", &s.Port)
	str("LOG_LEVEL", &s.LogLevel)
	str("LOG_FORMAT", &s.LogFormat)
	str("LOG_FILE", &s.LogFile)
	num("LOG_MAX_SIZE_MB", &s.LogMaxSizeMB)
	num("LOG_MAX_BACKUPS", &s.LogMaxBackups)
	str("DATA_DIR", &s.DataDir)
	str("DB_PATH", &s.DBPath)
	str("UPLOAD_DIR", &s.UploadDir)
	str("UPLOAD_BACKEND", &s.UploadBackend)
	num("EXPORT_WORKERS", &s.ExportWorkers)
	num("EXPORT_QUEUE_SIZE", &s.ExportQueueSize)
	num("EXPORT_STEP_DELAY_MS", &s.ExportStepDelayMS)
	num("EXPORT_TIMEOUT_S", &s.ExportTimeoutS)
	str("FFPROBE_PATH", &s.FFprobePath)
	str("MINIO_ENDPOINT", &s.MinIOEndpoint)
	str("MINIO_ACCESS_KEY", &s.MinIOAccessKey)
	str("MINIO_SECRET_KEY", &s.MinIOSecretKey)
	str("MINIO_BUCKET", &s.MinIOBucket)
	str("MINIO_REGION", &s.MinIORegion)
	flag("MINIO_USE_SSL", &s.MinIOUseSSL)
	str("ALLOWED_ORIGINS", &s.AllowedOrigins)
	num("CORS_MAX_AGE", &s.CORSMaxAgeS)

	return errors.Join(errs...)
}

func (s *settings) normalize() error {
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	s.UploadBackend = strings.ToLower(strings.TrimSpace(s.UploadBackend))

	for _, p := range []*string{&s.DataDir, &s.DBPath, &s.UploadDir, &s.LogFile} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	if s.DBPath == "" {
		s.DBPath = filepath.Join(s.DataDir, DBFilename)
	}
	if s.UploadDir == "" {
		s.UploadDir = filepath.Join(s.DataDir, "uploads")
	}
	return nil
}

func (s *settings) validate() error {
	var errs []error
	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s.LogLevel))
	}
	switch s.LogFormat {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, json or text, got %q", s.LogFormat))
	}
	if s.LogMaxSizeMB < 1 {
		errs = append(errs, errors.New("log_max_size_mb must be at least 1"))
	}
	if s.LogMaxBackups < 0 {
		errs = append(errs, errors.New("log_max_backups must not be negative"))
	}
	if strings.TrimSpace(s.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if s.CORSMaxAgeS < 0 {
		errs = append(errs, errors.New("cors_max_age must not be negative"))
	}
	if s.ExportWorkers < 1 {
		errs = append(errs, errors.New("export_workers must be at least 1"))
	}
	if s.ExportQueueSize < 1 {
		errs = append(errs, errors.New("export_queue_size must be at least 1"))
	}
	if s.ExportStepDelayMS < 0 {
		errs = append(errs, errors.New("export_step_delay_ms must not be negative"))
	}
	if s.ExportTimeoutS < 1 {
		errs = append(errs, errors.New("export_timeout_s must be at least 1"))
	}
	switch s.UploadBackend {
	case BackendLocal:
	case BackendMinIO:
		if s.MinIOEndpoint == "" || s.MinIOAccessKey == "" || s.MinIOSecretKey == "" || s.MinIOBucket == "" {
			errs = append(errs, errors.New("minio_endpoint, minio_access_key, minio_secret_key and minio_bucket are required when upload_backend is minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("upload_backend must be %q or %q, got %q", BackendLocal, BackendMinIO, s.UploadBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Host returns the address the HTTP server binds to.
func (c *EnvConfig) Host() string { return c.s.Host }

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.s.Port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// LogFormat returns auto, json or text.
func (c *EnvConfig) LogFormat() string {
	return c.s.LogFormat
}

// LogFile returns the rotating log file path, empty when disabled.
func (c *EnvConfig) LogFile() string       { return c.s.LogFile }
func (c *EnvConfig) LogMaxSizeMB() int     { return c.s.LogMaxSizeMB }
func (c *EnvConfig) LogMaxBackups() int    { return c.s.LogMaxBackups }
func (c *EnvConfig) UploadBackend() string { return c.s.UploadBackend }
func (c *EnvConfig) FFprobePath() string   { return c.s.FFprobePath }

// MinIO returns the object storage settings.
func (c *EnvConfig) MinIO() MinIO {
	return MinIO{
		Endpoint:  c.s.MinIOEndpoint,
		AccessKey: c.s.MinIOAccessKey,
		SecretKey: c.s.MinIOSecretKey,
		Bucket:    c.s.MinIOBucket,
		Region:    c.s.MinIORegion,
		UseSSL:    c.s.MinIOUseSSL,
	}
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.s.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return c.s.DBPath
}

// UploadDir is where the local upload backend writes files.
func (c *EnvConfig) UploadDir() string {
	return c.s.UploadDir
}

func (c *EnvConfig) ExportWorkers() int {
	return c.s.ExportWorkers
}

func (c *EnvConfig) ExportQueueSize() int {
	return c.s.ExportQueueSize
}

func (c *EnvConfig) ExportStepDelay() time.Duration {
	return time.Duration(c.s.ExportStepDelayMS) * time.Millisecond
}

func (c *EnvConfig) ExportTimeout() time.Duration {
	return time.Duration(c.s.ExportTimeoutS) * time.Second
}

// AllowedOrigins splits the comma separated allowed_origins value. "*"
// allows any origin.
func (c *EnvConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *EnvConfig) CORSMaxAge() time.Duration {
	return time.Duration(c.s.CORSMaxAgeS) * time.Second
}

// File returns the TOML file that was read, or "".
func (c *EnvConfig) File() string {
	return c.file
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
