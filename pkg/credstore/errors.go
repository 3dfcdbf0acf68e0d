package credstore

import "errors"

// ErrNotFound is returned when a store has no stored credentials.
var ErrNotFound = errors.New("credstore: credentials not found")
