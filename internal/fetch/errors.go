package fetch

import "fmt"

// InvalidPathError represents a destination path that cannot be used, most
// commonly because it would resolve outside the configured output folder.
// Descriptors carrying such paths are failed before any network call is made.
type InvalidPathError struct {
	Path   string // Destination path as supplied by the descriptor
	Reason string // Human-readable explanation of why the path was rejected
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid destination path %q: %s", e.Path, e.Reason)
}

// TransientNetworkError represents a retryable network failure: connection
// errors, timeouts, truncated bodies and 5xx-class responses.
type TransientNetworkError struct {
	URL        string // Source URL of the failed request
	StatusCode int    // HTTP status code, if applicable (0 for transport errors)
	Err        error  // Underlying error, if any
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient network error fetching %s (HTTP %d)", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("transient network error fetching %s: %v", e.URL, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// FatalNetworkError represents a non-retryable HTTP failure such as a 404 or
// an auth rejection. Retrying cannot help, so the asset fails immediately.
type FatalNetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FatalNetworkError) Error() string {
	return fmt.Sprintf("fatal network error fetching %s (HTTP %d)", e.URL, e.StatusCode)
}

func (e *FatalNetworkError) Unwrap() error {
	return e.Err
}

// LocalIOError represents a local file system failure: disk full, permission
// denied, or a failed rename into the final destination.
type LocalIOError struct {
	Op   string // The file system operation that failed (e.g., "create", "rename")
	Path string // The path the operation was applied to
	Err  error  // Underlying error, if any
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local io error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}
