package storage

import "errors"

// ErrNotFound is returned by Get/Update/Delete calls that found no matching
// row. Callers map it to an HTTP 404, never to a 500.
var ErrNotFound = errors.New("storage: not found")
