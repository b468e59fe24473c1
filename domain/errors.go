package domain

import "errors"

// ErrEmptyTitle is returned before any state mutation when a title fails
// validation.
var ErrEmptyTitle = errors.New("title must not be empty")

// ErrNotFound indicates the referenced entity does not exist, typically
// because another client deleted it concurrently.
var ErrNotFound = errors.New("entity not found")

// ErrConcurrencyConflict indicates the underlying storage rejected an update
// because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")
