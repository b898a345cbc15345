// Package idempotency stores responses to write requests so a retried request
// carrying the same Idempotency-Key replays the first response instead of
// being applied twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when attempting to store a duplicate key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a stored response is replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a stored response for one idempotency key.
type Record struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	ResponseHash       string    `json:"response_hash"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey checks if an idempotency key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash returns the hex SHA-256 of a response body.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository persists idempotency records.
type Repository interface {
	// Get returns ErrKeyNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) (*Record, error)

	// Store returns ErrKeyExists if the key is already stored.
	Store(ctx context.Context, record *Record) error

	// DeleteOlderThan removes records created more than age ago and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
