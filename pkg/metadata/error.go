package metadata

// ErrNotFound is returned when a record doesn't exist in the store.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	if e.Key == "" {
		return "record not found"
	}

	return "record not found: " + e.Key
}

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// Batch callers treat it as a per-item skip, not a fatal error.
type ErrDuplicate struct {
	Key string
}

func (e ErrDuplicate) Error() string {
	if e.Key == "" {
		return "record already exists"
	}

	return "record already exists: " + e.Key
}
