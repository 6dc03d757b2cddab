package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waCompanionReg"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Paths    PathsConfig
	Database DatabaseConfig
	Whatsapp WhatsappConfig
	Session  SessionConfig
	Queue    QueueConfig
	Security SecurityConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	OS                 string
	Platform           waCompanionReg.DeviceProps_PlatformType
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
	Uploads  string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type WhatsappConfig struct {
	LogLevel    string
	MaxFileSize int64
	TypeUser    string
}

// SessionConfig drives the session supervisor recovery policy.
type SessionConfig struct {
	InitTimeout        time.Duration
	RetryBackoff       time.Duration
	ReconnectDelay     time.Duration
	ProbeInterval      time.Duration
	MaxInitFailures    int
	AutoStartOnBoot    bool
	AutoStartDelay     time.Duration
	QRImageSize        int
	FailureCounterTTL  time.Duration
	DebugLogBufferSize int
}

// QueueConfig drives the dispatch ticker and retry bookkeeping.
type QueueConfig struct {
	TickInterval time.Duration
	MessageDelay time.Duration
	MaxRetries   int
	Workers      int
	WorkerQueue  int
	ReportLimit  int
}

type SecurityConfig struct {
	SecretKey     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		OS:                 getEnv("APP_OS", "Linux"),
		Platform:           waCompanionReg.DeviceProps_CHROME,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
		Uploads:  getEnv("PATH_UPLOADS", filepath.Join(baseDir, "uploads")),
	}

	dbDriver := getEnv("DB_DRIVER", "sqlite")
	dbName := getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "queue.db"))
	if dbDriver == "postgres" && os.Getenv("DB_NAME") == "" {
		dbName = "whatsapp_engine"
	}
	dbCfg := DatabaseConfig{
		Driver:          dbDriver,
		Name:            dbName,
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "wse:"),
	}

	waCfg := WhatsappConfig{
		LogLevel:    getEnv("WHATSAPP_LOG_LEVEL", "ERROR"),
		MaxFileSize: getEnvInt64("WHATSAPP_MAX_FILE_SIZE", 50000000),
		TypeUser:    "@s.whatsapp.net",
	}

	sessionCfg := SessionConfig{
		InitTimeout:        getEnvDuration("SESSION_INIT_TIMEOUT", 5*time.Minute),
		RetryBackoff:       getEnvDuration("SESSION_RETRY_BACKOFF", 5*time.Second),
		ReconnectDelay:     getEnvDuration("SESSION_RECONNECT_DELAY", 2*time.Second),
		ProbeInterval:      getEnvDuration("SESSION_PROBE_INTERVAL", 30*time.Second),
		MaxInitFailures:    getEnvInt("SESSION_MAX_INIT_FAILURES", 3),
		AutoStartOnBoot:    getEnvBool("SESSION_AUTO_START", true),
		AutoStartDelay:     getEnvDuration("SESSION_AUTO_START_DELAY", 5*time.Second),
		QRImageSize:        getEnvInt("SESSION_QR_SIZE", 256),
		FailureCounterTTL:  getEnvDuration("SESSION_FAILURE_TTL", 24*time.Hour),
		DebugLogBufferSize: getEnvInt("DEBUG_LOG_BUFFER", 200),
	}

	// MESSAGE_DELAY is expressed in seconds for compatibility with older deployments
	queueCfg := QueueConfig{
		TickInterval: getEnvDuration("QUEUE_TICK_INTERVAL", 3*time.Second),
		MessageDelay: time.Duration(getEnvInt("MESSAGE_DELAY", 10)) * time.Second,
		MaxRetries:   getEnvInt("MAX_RETRIES", 3),
		Workers:      getEnvInt("QUEUE_WORKERS", 4),
		WorkerQueue:  getEnvInt("QUEUE_WORKER_QUEUE_SIZE", 64),
		ReportLimit:  getEnvInt("QUEUE_REPORT_LIMIT", 500),
	}

	cfg := &Config{
		App:      appCfg,
		Paths:    pathsCfg,
		Database: dbCfg,
		Whatsapp: waCfg,
		Session:  sessionCfg,
		Queue:    queueCfg,
		Security: SecurityConfig{
			SecretKey:     getEnv("APP_SECRET_KEY", "changeme_please_change_me_in_prod_12345"),
			TokenTTL:      getEnvDuration("APP_TOKEN_TTL", 24*time.Hour),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	Global = cfg
	return cfg, nil
}
