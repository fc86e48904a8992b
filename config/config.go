package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	WebRTC   WebRTCConfig
	AWS      AWSConfig
	Room     RoomConfig
}

// WebRTCConfig holds STUN/TURN ICE server URLs handed to clients.
type WebRTCConfig struct {
	ICEUrls        []string // e.g. stun:stun.l.google.com:19302 (comma-separated in env)
	TURNUsername   string
	TURNCredential string
}

// ICEServers converts the configured URLs to the shape browsers pass to RTCPeerConnection.
// Credentials are attached to turn: and turns: URLs only.
func (c WebRTCConfig) ICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEUrls))
	for _, u := range c.ICEUrls {
		s := webrtc.ICEServer{URLs: []string{u}}
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			s.Username = c.TURNUsername
			s.Credential = c.TURNCredential
		}
		out = append(out, s)
	}
	return out
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	ShutdownTimeout    int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	// InstanceID names this process in connection refs and its direct-delivery channel.
	InstanceID string
	// EmbeddedWorker runs the job processor inside the API process.
	EmbeddedWorker bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/webinar?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the transcript bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	TranscriptsBucket    string
	PresignExpireMinutes int
}

// RoomConfig holds per-room limits.
type RoomConfig struct {
	DefaultCapacity    int
	ChatRateLimit      int
	ChatRateWindow     time.Duration
	ChatRetention      int
	ChatHistoryLimit   int
	ChatMaxLength      int
	ChatTTLAfterEnd    time.Duration
	ReactionRateLimit  int
	ReactionRateWindow time.Duration
	RelayRateLimit     int
	RelayRateWindow    time.Duration
	PresenceTTL        time.Duration
	ReaperInterval     time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	instanceID := getEnv("INSTANCE_ID", "")
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = host + "-" + uuid.NewString()[:8]
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			ShutdownTimeout:    getEnvInt("SHUTDOWN_TIMEOUT_SEC", 15),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			InstanceID:         instanceID,
			EmbeddedWorker:     getEnv("EMBEDDED_WORKER", "true") == "true",
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "webinar"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		WebRTC: WebRTCConfig{
			ICEUrls:        splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
			TURNUsername:   getEnv("WEBRTC_TURN_USERNAME", ""),
			TURNCredential: getEnv("WEBRTC_TURN_CREDENTIAL", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			TranscriptsBucket:    getEnv("AWS_S3_TRANSCRIPTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Room: RoomConfig{
			DefaultCapacity:    getEnvInt("DEFAULT_ROOM_CAPACITY", 500),
			ChatRateLimit:      getEnvInt("CHAT_RATE_LIMIT", 10),
			ChatRateWindow:     getEnvSeconds("CHAT_RATE_WINDOW_SEC", 60),
			ChatRetention:      getEnvInt("CHAT_RETENTION", 1000),
			ChatHistoryLimit:   getEnvInt("CHAT_HISTORY_LIMIT", 50),
			ChatMaxLength:      getEnvInt("CHAT_MAX_LENGTH", 2000),
			ChatTTLAfterEnd:    getEnvSeconds("CHAT_TTL_AFTER_END_SEC", 7*24*3600),
			ReactionRateLimit:  getEnvInt("REACTION_RATE_LIMIT", 30),
			ReactionRateWindow: getEnvSeconds("REACTION_RATE_WINDOW_SEC", 60),
			RelayRateLimit:     getEnvInt("RELAY_RATE_LIMIT", 600),
			RelayRateWindow:    getEnvSeconds("RELAY_RATE_WINDOW_SEC", 60),
			PresenceTTL:        getEnvSeconds("PRESENCE_TTL_SEC", 90),
			ReaperInterval:     getEnvSeconds("REAPER_INTERVAL_SEC", 30),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.Contains(c.Server.InstanceID, "/") {
		return fmt.Errorf("INSTANCE_ID %q must not contain '/'", c.Server.InstanceID)
	}
	if c.Room.PresenceTTL <= 0 || c.Room.ReaperInterval <= 0 {
		return fmt.Errorf("PRESENCE_TTL_SEC and REAPER_INTERVAL_SEC must be positive")
	}
	if c.Room.ChatRateWindow <= 0 || c.Room.ReactionRateWindow <= 0 || c.Room.RelayRateWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
