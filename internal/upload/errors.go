package upload

import "errors"

var (
	// ErrDecode means the uploaded payload is empty, malformed or of an
	// unsupported format. The caller can fix it.
	ErrDecode = errors.New("invalid spreadsheet")
	// ErrValidation means a request parameter is out of range.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means no record exists for the id.
	ErrNotFound = errors.New("upload not found")
	// ErrUnauthorized means the record exists but belongs to someone else.
	// Callers must present it exactly like ErrNotFound.
	ErrUnauthorized = errors.New("upload not accessible")
	// ErrStorage wraps persistence and artifact failures.
	ErrStorage = errors.New("storage failure")
)
