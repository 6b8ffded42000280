package metainfo

import (
	"errors"
	"fmt"
)

// ErrMalformedMetadata is the root of every decoding failure. All the more
// specific sentinels below wrap it.
var ErrMalformedMetadata = errors.New("malformed metadata")

// Sentinel errors for validation.
var (
	ErrInvalidTorrentStructure = fmt.Errorf("%w: invalid torrent structure", ErrMalformedMetadata)
	ErrInvalidInfoDict         = fmt.Errorf("%w: invalid info dictionary", ErrMalformedMetadata)
	ErrInvalidPieceLength      = fmt.Errorf("%w: invalid piece length", ErrMalformedMetadata)
	ErrInvalidPieces           = fmt.Errorf("%w: invalid pieces", ErrMalformedMetadata)
	ErrInvalidFileStructure    = fmt.Errorf("%w: invalid file structure", ErrMalformedMetadata)
	ErrInvalidFilePath         = fmt.Errorf("%w: invalid file path", ErrMalformedMetadata)
	ErrInconsistentData        = fmt.Errorf("%w: inconsistent data", ErrMalformedMetadata)
)

// ValidationError wraps sentinel errors with the offending field.
type ValidationError struct {
	Type    error  // Sentinel error type
	Field   string // Field that caused the error
	Message string
	Err     error // Underlying decoder error, if any
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if e.Field != "" {
		return fmt.Sprintf("%v in field '%s': %s", e.Type, e.Field, msg)
	}

	return fmt.Sprintf("%v: %s", e.Type, msg)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Type, e.Err}
	}

	return []error{e.Type}
}

func newValidationError(errType error, field, message string) *ValidationError {
	return &ValidationError{
		Type:    errType,
		Field:   field,
		Message: message,
	}
}
