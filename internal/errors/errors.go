package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type ErrorCategory string

const (
	CategoryMetadata  ErrorCategory = "METADATA"  // Descriptor could not be decoded
	CategorySelection ErrorCategory = "SELECTION" // Pattern invalid or matched nothing
	CategoryFetch     ErrorCategory = "FETCH"     // Descriptor could not be retrieved
	CategoryIntegrity ErrorCategory = "INTEGRITY" // Piece failed hash verification
	CategoryEngine    ErrorCategory = "ENGINE"    // Transfer engine failure
	CategoryIO        ErrorCategory = "IO"        // File system issues
	CategoryContext   ErrorCategory = "CONTEXT"   // Context cancellation
	CategoryConfig    ErrorCategory = "CONFIG"    // Invalid configuration
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitMalformedMetadata = 2
	ExitNoFilesMatched    = 3
	ExitFetchFailed       = 4
	ExitEngineFatal       = 5
	ExitIO                = 6
	ExitCancelled         = 130
)

// DownloadError represents an error that occurred during a fetch session
type DownloadError struct {
	Err        error         // Original error
	Category   ErrorCategory // General category
	Timestamp  time.Time     // When the error occurred
	Resource   string        // What resource was being accessed
	StatusCode int           // HTTP status code, when the source was fetched over HTTP
	Details    map[string]any
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d): %v", e.Category, e.Resource, e.StatusCode, e.Err)
	}

	if e.Resource == "" {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is lets a category sentinel match any DownloadError of that category.
func (e *DownloadError) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.category == e.Category
}

type sentinel struct {
	category ErrorCategory
	msg      string
}

func (s *sentinel) Error() string {
	return s.msg
}

// Category sentinels, matched with errors.Is against any error chain holding
// a DownloadError of the same category.
var (
	ErrMalformedMetadata error = &sentinel{CategoryMetadata, "malformed metadata"}
	ErrNoFilesMatched    error = &sentinel{CategorySelection, "no files matched"}
	ErrFetchFailed       error = &sentinel{CategoryFetch, "fetch failed"}
	ErrPieceIntegrity    error = &sentinel{CategoryIntegrity, "piece integrity failure"}
	ErrEngineFatal       error = &sentinel{CategoryEngine, "transfer engine failure"}
)

func newError(category ErrorCategory, err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  category,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewMetadataError creates a descriptor decoding error
func NewMetadataError(err error, resource string) *DownloadError {
	return newError(CategoryMetadata, err, resource)
}

// NewSelectionError creates a file selection error
func NewSelectionError(err error, pattern string) *DownloadError {
	return newError(CategorySelection, err, pattern)
}

// NewFetchError creates an error for a descriptor that could not be retrieved.
// statusCode is zero for transport and local file failures.
func NewFetchError(err error, resource string, statusCode int) *DownloadError {
	de := newError(CategoryFetch, err, resource)
	de.StatusCode = statusCode

	return de
}

func NewIntegrityError(err error, piece int) *DownloadError {
	return newError(CategoryIntegrity, err, fmt.Sprintf("piece %d", piece))
}

// NewEngineError creates a fatal transfer engine error
func NewEngineError(err error, resource string) *DownloadError {
	return newError(CategoryEngine, err, resource)
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *DownloadError {
	return newError(CategoryIO, err, resource)
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *DownloadError {
	return newError(CategoryContext, err, resource)
}

// NewConfigError creates a configuration error
func NewConfigError(err error, field string) *DownloadError {
	return newError(CategoryConfig, err, field)
}

// CategoryOf returns the category of the outermost DownloadError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Category, true
	}

	return "", false
}

// IsIOError determines if the error is I/O related
func IsIOError(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == CategoryIO
}

// GetStatusCode extracts the status code from an error if available
func GetStatusCode(err error) (int, bool) {
	var downloadErr *DownloadError
	if As(err, &downloadErr) && downloadErr.StatusCode != 0 {
		return downloadErr.StatusCode, true
	}

	return 0, false
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}

	c, ok := CategoryOf(err)
	if !ok {
		return ExitFailure
	}

	switch c {
	case CategoryMetadata:
		return ExitMalformedMetadata
	case CategorySelection:
		return ExitNoFilesMatched
	case CategoryFetch:
		return ExitFetchFailed
	case CategoryEngine, CategoryIntegrity:
		return ExitEngineFatal
	case CategoryIO, CategoryConfig:
		return ExitIO
	case CategoryContext:
		return ExitCancelled
	default:
		return ExitFailure
	}
}

// WithDetails adds additional context to a DownloadError
func WithDetails(err error, details map[string]any) error {
	var downloadErr *DownloadError
	if !As(err, &downloadErr) {
		return err
	}

	if downloadErr.Details == nil {
		downloadErr.Details = make(map[string]any)
	}

	for k, v := range details {
		downloadErr.Details[k] = v
	}

	return downloadErr
}
