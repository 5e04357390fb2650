// Package domain concentra entidades e estruturas centrais do rate limiter.
package domain

import "math"

// Unbounded marks a tier without a request quota. Counts never reach it, so
// comparisons against it always admit.
const Unbounded int64 = math.MaxInt64

// IdentitySource names which part of the request produced the identity key.
type IdentitySource string

const (
	SourceCredential IdentitySource = "credential"
	SourceUserID     IdentitySource = "userId"
	SourceNetwork    IdentitySource = "network"
)

// RequestMetadata carries the request fields the admission chain inspects.
// The HTTP adapter fills it; the core never touches net/http.
type RequestMetadata struct {
	Authorization string
	UserID        string
	ForwardedFor  string
	RealIP        string
	RemoteAddr    string
}

// TierResolver is an optional caller-supplied strategy for mapping a request
// to a tier name. Returning "" falls through to the default mapping.
type TierResolver func(meta RequestMetadata, source IdentitySource) string

// Decision is the outcome of one admission check.
//
// Remaining is 0 whenever Allowed is false, and Unbounded (never negative)
// for unlimited tiers. RetryAfterSeconds is 0 whenever Allowed is true.
// ResetEpochSeconds is an absolute Unix timestamp, not a duration.
type Decision struct {
	Allowed           bool
	Current           int64
	Remaining         int64
	ResetEpochSeconds int64
	RetryAfterSeconds int64

	Tier   string
	Limit  int64
	Key    string
	Source IdentitySource
}
