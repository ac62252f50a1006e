package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	MusicPath      string // Root of the music library
	AutoRefresh    bool   // Rescan the library whenever the queue runs dry
	APIEnabled     bool   // Serve the /api routes
	ListenAddr     string
	HistoryLimit   int  // 0 keeps every played track
	WatchLibrary   bool // Rescan in the background when files under MusicPath change
	Prober         string
	FFprobePath    string
	TrackGap       time.Duration // Pause between tracks
	ListenerBuffer int           // Chunks queued per listener before it is dropped

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Play log database
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// MinIO配置
	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioBucket      string
	MinioPrefix      string
	MinioUseSSL      bool
	MinioRegion      string
	MinioSyncOnStart bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() *Config {
	return &Config{
		MusicPath:      getEnv("MUSIC_PATH", ""),
		AutoRefresh:    getEnvBool("AUTO_REFRESH", true),
		APIEnabled:     getEnvBool("API_ENABLED", false),
		ListenAddr:     getEnv("LISTEN_ADDR", ":7887"),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 100),
		WatchLibrary:   getEnvBool("WATCH_LIBRARY", false),
		Prober:         getEnv("PROBER", "auto"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		TrackGap:       time.Duration(getEnvInt("TRACK_GAP_MS", 0)) * time.Millisecond,
		ListenerBuffer: getEnvInt("LISTENER_BUFFER", 16),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBEnabled:  getEnvBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no default for the password
		DBName:     getEnv("DB_NAME", "wadio"),

		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:      getEnv("MINIO_BUCKET", "wadio"),
		MinioPrefix:      getEnv("MINIO_PREFIX", "music/"),
		MinioUseSSL:      getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:      getEnv("MINIO_REGION", "us-east-1"),
		MinioSyncOnStart: getEnvBool("MINIO_SYNC_ON_START", false),
	}
}
