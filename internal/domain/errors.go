// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict, e.g. a task
// that was already claimed by another scheduler tick.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrInvalid indicates a request that failed domain validation.
var ErrInvalid = errors.New("invalid request")
