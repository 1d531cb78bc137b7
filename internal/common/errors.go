// Package common defines sentinel errors and constants shared by the server,
// the client and the CLI. Callers should match them with errors.Is.
package common

import "errors"

// AccessTokenHeaderName is the gRPC metadata key carrying the access token.
const AccessTokenHeaderName = "access_token"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrGeneration is fatal to a turn: the backend was unreachable, timed
	// out or answered with something unusable. Nothing is persisted.
	ErrGeneration = errors.New("generation failed")

	// ErrPersistence is fatal to a turn: the exchange store rejected a read
	// or write. Indexing and audit are not attempted.
	ErrPersistence = errors.New("persistence failed")

	// ErrMemoryIndex is a soft failure for retrieval and upsert. For removal
	// it means the records stay queued for reconciliation.
	ErrMemoryIndex = errors.New("memory index failed")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
