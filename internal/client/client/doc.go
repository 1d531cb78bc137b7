// Package client is the gRPC client for the companion server.
//
// GRPCClient dials the server with the JSON codec, attaches the access token
// to every call through a unary interceptor, and maps gRPC status codes to
// the sentinel errors in errors.go so callers can match them with errors.Is.
package client
