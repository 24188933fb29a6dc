package config

import "time"

// ClientConfig holds settings for ICM client tooling.
type ClientConfig struct {
	KeyFile      string
	BaseURL      string
	ExchangeMode string
	ClaimSet     string
	Timeout      time.Duration
	Debug        bool
}

// LoadClientConfig constructs a ClientConfig from environment variables.
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		KeyFile:      GetString("ICM_KEY_FILE", "icm_key.json"),
		BaseURL:      GetString("ICM_BASE_URL", ""),
		ExchangeMode: GetString("ICM_EXCHANGE_MODE", "auth_url"),
		ClaimSet:     GetString("ICM_CLAIM_SET", "key_name"),
		Timeout:      time.Duration(GetInt("ICM_TIMEOUT_SECONDS", 15)) * time.Second,
		Debug:        GetBool("ICM_DEBUG", false),
	}
}
