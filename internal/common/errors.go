// Package common defines shared constants and sentinel errors used across
// the auditor, scanner, cleanup executor and gRPC server. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable marks a fact-source failure for a single object.
	// The object is skipped; the batch continues.
	ErrSourceUnavailable = errors.New("fact source unavailable")

	// ErrPlanPersistence marks a remediation action the plan sink rejected.
	// The action is retried on a later pass.
	ErrPlanPersistence = errors.New("plan persistence failure")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
