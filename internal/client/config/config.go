package config

import (
	"os"
	"time"
)

const (
	TokenEnvVar  = "COMPANION_TOKEN"
	SecretEnvVar = "COMPANION_SECRET"
)

// Config holds runtime settings for companionctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - AccessToken: bearer token sent with every call.
//   - RequestTimeout: per-command deadline; generation can take a while.
//   - SecretKey / TokenTTL: used only by the token command to mint
//     development tokens.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	RequestTimeout     time.Duration
	SecretKey          string
	TokenTTL           time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.AccessToken = os.Getenv(TokenEnvVar)
	c.RequestTimeout = 45 * time.Second
	c.SecretKey = os.Getenv(SecretEnvVar)
	if c.SecretKey == "" {
		c.SecretKey = "secretKey"
	}
	c.TokenTTL = 24 * time.Hour
}

// LoadConfig applies defaults, then overlays the JSON file at path when
// path is not empty.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
