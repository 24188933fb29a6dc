package config

import "time"

// ServerConfig holds runtime configuration for the ICM emulator server.
type ServerConfig struct {
	Environment          string
	Addr                 string
	DatabaseURL          string
	SigningSecret        string
	ValueEncryptionKey   string
	AccessTokenTTL       time.Duration
	AuthAudience         string
	ServiceAccountsFile  string
	RateLimitPerMinute   int
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
	RateLimitRedisPrefix string
	LogLevel             string
}

// LoadServerConfig constructs a ServerConfig from environment variables.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("ICM_ADDR", ":4100"),
		DatabaseURL:          GetString("DATABASE_URL", ""),
		SigningSecret:        GetString("ICM_SIGNING_SECRET", "supersecuresecret"),
		ValueEncryptionKey:   GetString("ICM_VALUE_ENCRYPTION_KEY", "supersecuresecret"),
		AccessTokenTTL:       time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		AuthAudience:         GetString("ICM_AUTH_AUDIENCE", ""),
		ServiceAccountsFile:  GetString("ICM_SERVICE_ACCOUNTS_FILE", "service_accounts.json"),
		RateLimitPerMinute:   GetInt("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
		RateLimitRedisPrefix: GetString("RATE_LIMIT_REDIS_PREFIX", "icm:ratelimit:"),
		LogLevel:             GetString("ICM_LOG_LEVEL", "info"),
	}
}
