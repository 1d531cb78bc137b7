package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/companion/internal/flagx"
	"github.com/dmitrijs2005/companion/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so both "5s" strings and integer nanoseconds are accepted.
// Absent keys leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`
	SecretKey        string `json:"secret_key"`

	AnthropicAPIKey   string         `json:"anthropic_api_key"`
	AnthropicBaseURL  string         `json:"anthropic_base_url"`
	AnthropicModel    string         `json:"anthropic_model"`
	GenerationTimeout timex.Duration `json:"generation_timeout"`
	GenerationRate    float64        `json:"generation_rate"`
	GenerationBurst   int            `json:"generation_burst"`

	MemoryIndexPath    string `json:"memory_index_path"`
	EmbeddingProvider  string `json:"embedding_provider"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingAPIKey    string `json:"embedding_api_key"`
	EmbeddingBaseURL   string `json:"embedding_base_url"`
	EmbeddingCacheSize int64  `json:"embedding_cache_size"`

	MemoryTopK    int            `json:"memory_top_k"`
	WindowSize    int            `json:"window_size"`
	MemoryTimeout timex.Duration `json:"memory_timeout"`

	ModerationPhrasesFile string `json:"moderation_phrases_file"`

	ReconcileInterval  timex.Duration `json:"reconcile_interval"`
	ReconcileBatchSize int            `json:"reconcile_batch_size"`

	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`

	LogLevel string `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $COMPANION_CONFIG) onto config. No path means nothing is loaded. An
// unreadable file or invalid JSON panics, as misconfiguration is fatal at
// start-up.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)

	setString(&config.AnthropicAPIKey, c.AnthropicAPIKey)
	setString(&config.AnthropicBaseURL, c.AnthropicBaseURL)
	setString(&config.AnthropicModel, c.AnthropicModel)
	setDuration(&config.GenerationTimeout, c.GenerationTimeout)
	if c.GenerationRate > 0 {
		config.GenerationRate = c.GenerationRate
	}
	setInt(&config.GenerationBurst, c.GenerationBurst)

	setString(&config.MemoryIndexPath, c.MemoryIndexPath)
	setString(&config.EmbeddingProvider, c.EmbeddingProvider)
	setString(&config.EmbeddingModel, c.EmbeddingModel)
	setString(&config.EmbeddingAPIKey, c.EmbeddingAPIKey)
	setString(&config.EmbeddingBaseURL, c.EmbeddingBaseURL)
	if c.EmbeddingCacheSize > 0 {
		config.EmbeddingCacheSize = c.EmbeddingCacheSize
	}

	setInt(&config.MemoryTopK, c.MemoryTopK)
	setInt(&config.WindowSize, c.WindowSize)
	setDuration(&config.MemoryTimeout, c.MemoryTimeout)

	setString(&config.ModerationPhrasesFile, c.ModerationPhrasesFile)

	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setInt(&config.ReconcileBatchSize, c.ReconcileBatchSize)

	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)

	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
