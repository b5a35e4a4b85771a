package util

import "github.com/google/uuid"

// NewID returns a random UUID string used to tag controller instances and
// simulator runs in logs.
func NewID() string { return uuid.NewString() }
