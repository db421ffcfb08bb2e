// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotReady indicates the tool server has not finished activating.
// Callers should treat it as retryable, not as a failure.
var ErrNotReady = errors.New("tool server is still initializing")

// ErrDuplicateCall indicates an identical tool call was already executed
// within the same run and was skipped.
var ErrDuplicateCall = errors.New("duplicate tool call skipped")
