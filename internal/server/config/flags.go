package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/companion/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    gRPC bind address (e.g., ":50051")
//	-d string    PostgreSQL DSN
//	-s string    JWT HMAC secret key
//	-k string    Anthropic API key
//	-m string    Anthropic model
//	-t duration  generation timeout (e.g., "30s")
//	-i string    memory index directory (empty = in-memory)
//	-p string    embedding provider ("openai" or "ollama")
//	-n int       memories retrieved per turn
//	-w int       recent exchanges included per turn
//	-r duration  reconcile interval
//	-b string    S3 bucket for moderation archive
//	-l string    log level
//
// os.Args is filtered with flagx.FilterArgs first, so flags owned by other
// components (-c/-config) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-m", "-t", "-i", "-p", "-n", "-w", "-r", "-b", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.AnthropicAPIKey, "k", config.AnthropicAPIKey, "Anthropic API key")
	fs.StringVar(&config.AnthropicModel, "m", config.AnthropicModel, "Anthropic model")
	fs.DurationVar(&config.GenerationTimeout, "t", config.GenerationTimeout, "generation timeout")
	fs.StringVar(&config.MemoryIndexPath, "i", config.MemoryIndexPath, "memory index directory")
	fs.StringVar(&config.EmbeddingProvider, "p", config.EmbeddingProvider, "embedding provider (openai|ollama)")
	fs.IntVar(&config.MemoryTopK, "n", config.MemoryTopK, "memories retrieved per turn")
	fs.IntVar(&config.WindowSize, "w", config.WindowSize, "recent exchanges per turn")
	fs.DurationVar(&config.ReconcileInterval, "r", config.ReconcileInterval, "reconcile interval")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for moderation archive")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
