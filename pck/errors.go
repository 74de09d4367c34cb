package pck

import "errors"

var (
	// ErrPathAccess is returned when a path is missing, unreadable or
	// its directory is not writable when a writer is required
	ErrPathAccess = errors.New("path not accessible")

	// ErrFormat is returned for malformed input: non-mapping data,
	// keys nested deeper than a backend supports, unsupported file types
	ErrFormat = errors.New("invalid format")

	// ErrKeyNotFound is returned when reading a key that doesn't exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrSerialization is returned when a value can't be encoded
	ErrSerialization = errors.New("value can't be serialized")

	// ErrReadOnly is returned when writing to a compressed (finalized) store
	ErrReadOnly = errors.New("store is read-only")
)
