package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Cache       CacheConfig
	Exports     ExportsConfig
	CheckIn     CheckInConfig
	Graph       GraphConfig
	Identity    IdentityConfig
	Recognition RecognitionConfig
	OnlineSync  OnlineSyncConfig
	GRPC        GRPCConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes the Redis backed read caches.
type CacheConfig struct {
	CourseTTL  time.Duration
	SummaryTTL time.Duration
	RosterTTL  time.Duration
}

// ExportsConfig configures stored bulk exports and their signed download links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// CheckInConfig configures QR check-in codes shown on the classroom screen.
type CheckInConfig struct {
	// ScanURL is the page the code opens; the signed token is appended as ?token=.
	ScanURL         string
	Secret          string
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	ImageSize       int
}

// GraphConfig holds Microsoft Graph app credentials used for online meeting attendance.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	OrganizerID  string
	BaseURL      string
	Timeout      time.Duration
}

// Configured reports whether enough credentials are present to call Graph.
func (g GraphConfig) Configured() bool {
	return g.TenantID != "" && g.ClientID != "" && g.ClientSecret != "" && g.OrganizerID != ""
}

// IdentityConfig configures Microsoft Entra ID token exchange.
type IdentityConfig struct {
	Enabled         bool
	TenantID        string
	Audience        string
	JWKSURL         string
	RefreshInterval time.Duration
}

// RecognitionConfig points at the face recognition service.
type RecognitionConfig struct {
	BaseURL        string
	Timeout        time.Duration
	FrameRateLimit float64
	FrameBurst     int
}

// OnlineSyncConfig sizes the online roster sync worker pool.
type OnlineSyncConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// GRPCConfig toggles the gRPC health endpoint.
type GRPCConfig struct {
	HealthPort int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		CourseTTL:  parseDuration(v.GetString("COURSE_CACHE_TTL"), 5*time.Minute),
		SummaryTTL: parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 30*time.Second),
		RosterTTL:  parseDuration(v.GetString("ROSTER_CACHE_TTL"), 10*time.Second),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), 30*time.Minute),
	}

	cfg.CheckIn = CheckInConfig{
		ScanURL:         v.GetString("QR_SCAN_URL"),
		Secret:          v.GetString("QR_SIGNING_SECRET"),
		DefaultDuration: parseDuration(v.GetString("QR_DEFAULT_DURATION"), 5*time.Minute),
		MaxDuration:     parseDuration(v.GetString("QR_MAX_DURATION"), 2*time.Hour),
		ImageSize:       v.GetInt("QR_IMAGE_SIZE"),
	}
	if cfg.CheckIn.Secret == "" {
		cfg.CheckIn.Secret = cfg.JWT.Secret
	}

	cfg.Graph = GraphConfig{
		TenantID:     v.GetString("GRAPH_TENANT_ID"),
		ClientID:     v.GetString("GRAPH_CLIENT_ID"),
		ClientSecret: v.GetString("GRAPH_CLIENT_SECRET"),
		OrganizerID:  v.GetString("GRAPH_ORGANIZER_ID"),
		BaseURL:      v.GetString("GRAPH_BASE_URL"),
		Timeout:      parseDuration(v.GetString("GRAPH_TIMEOUT"), 10*time.Second),
	}

	cfg.Identity = IdentityConfig{
		Enabled:         v.GetBool("ENABLE_ENTRA_LOGIN"),
		TenantID:        v.GetString("ENTRA_TENANT_ID"),
		Audience:        v.GetString("ENTRA_AUDIENCE"),
		JWKSURL:         v.GetString("ENTRA_JWKS_URL"),
		RefreshInterval: parseDuration(v.GetString("ENTRA_JWKS_REFRESH"), time.Hour),
	}

	cfg.Recognition = RecognitionConfig{
		BaseURL:        v.GetString("RECOGNITION_BASE_URL"),
		Timeout:        parseDuration(v.GetString("RECOGNITION_TIMEOUT"), 5*time.Second),
		FrameRateLimit: v.GetFloat64("RECOGNITION_FRAME_RPS"),
		FrameBurst:     v.GetInt("RECOGNITION_FRAME_BURST"),
	}

	cfg.OnlineSync = OnlineSyncConfig{
		Workers:    v.GetInt("ONLINE_SYNC_WORKERS"),
		Retries:    v.GetInt("ONLINE_SYNC_RETRIES"),
		RetryDelay: parseDuration(v.GetString("ONLINE_SYNC_RETRY_DELAY"), 5*time.Second),
	}

	cfg.GRPC = GRPCConfig{HealthPort: v.GetInt("GRPC_HEALTH_PORT")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendease")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "attendease-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("COURSE_CACHE_TTL", "5m")
	v.SetDefault("SUMMARY_CACHE_TTL", "30s")
	v.SetDefault("ROSTER_CACHE_TTL", "10s")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "30m")

	v.SetDefault("QR_SCAN_URL", "http://localhost:3000/scan")
	v.SetDefault("QR_DEFAULT_DURATION", "5m")
	v.SetDefault("QR_MAX_DURATION", "2h")
	v.SetDefault("QR_IMAGE_SIZE", 256)

	v.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("GRAPH_TIMEOUT", "10s")

	v.SetDefault("ENABLE_ENTRA_LOGIN", false)
	v.SetDefault("ENTRA_JWKS_REFRESH", "1h")

	v.SetDefault("RECOGNITION_BASE_URL", "http://localhost:5000")
	v.SetDefault("RECOGNITION_TIMEOUT", "5s")
	v.SetDefault("RECOGNITION_FRAME_RPS", 10)
	v.SetDefault("RECOGNITION_FRAME_BURST", 20)

	v.SetDefault("ONLINE_SYNC_WORKERS", 2)
	v.SetDefault("ONLINE_SYNC_RETRIES", 3)
	v.SetDefault("ONLINE_SYNC_RETRY_DELAY", "5s")

	v.SetDefault("GRPC_HEALTH_PORT", 0)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
