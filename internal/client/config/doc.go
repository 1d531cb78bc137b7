// Package config loads runtime configuration for companionctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults), including the
//     COMPANION_TOKEN and COMPANION_SECRET environment variables.
//  2. Optional JSON file given to LoadConfig.
//  3. Command-line flags, applied by the cli package on top of the result.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJhbGciOi...",
//	  "request_timeout": "45s",
//	  "secret_key": "secretKey",
//	  "token_ttl": "24h"
//	}
package config
