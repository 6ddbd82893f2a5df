package feed

import "errors"

var (
	// ErrMissingTable is returned for a change whose table cannot be determined.
	ErrMissingTable = errors.New("change has no table")
	// ErrMissingType is returned for a change without an INSERT/UPDATE type.
	ErrMissingType = errors.New("change has no type")
)
