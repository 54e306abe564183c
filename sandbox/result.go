package sandbox

import (
	"time"
)

// ErrorKind categorizes why a script execution failed. The empty value
// means no error.
type ErrorKind string

// Error categories reported in Result.ErrorKind.
const (
	ErrNone         ErrorKind = ""
	ErrSyntax       ErrorKind = "syntax_error"
	ErrImportDenied ErrorKind = "import_denied"
	ErrReference    ErrorKind = "reference_error"
	ErrType         ErrorKind = "type_error"
	ErrRange        ErrorKind = "range_error"
	ErrRuntime      ErrorKind = "runtime_error"
	ErrTimeout      ErrorKind = "timeout"
	ErrInternal     ErrorKind = "internal_error"
)

func (k ErrorKind) String() string {
	if k == ErrNone {
		return "none"
	}
	return string(k)
}

// Request carries one snippet of untrusted source text to execute.
// A Request is consumed by exactly one execution.
type Request struct {
	// Source is the untrusted script text.
	Source string

	// Bindings are caller-supplied variables pre-set in the script
	// namespace before execution. They are reported back in
	// Result.Variables alongside anything the script defines.
	Bindings map[string]any

	// Timeout is the wall-clock budget for the run. Zero means the
	// interpreter default.
	Timeout time.Duration
}

// Result is the structured outcome of one execution. Every call to
// Execute produces exactly one Result; script failures of any kind are
// reported here, never as a Go error.
type Result struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`

	// Truncated is set when captured output hit the configured cap.
	Truncated bool `json:"truncated,omitempty"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	// ErrorDetail holds the script stack trace when one is available.
	ErrorDetail string `json:"error_detail,omitempty"`

	// Variables maps every name the script introduced (plus the request
	// bindings) to a JSON-safe value.
	Variables map[string]any `json:"variables"`

	// Artifacts lists saved figure files in creation order.
	Artifacts []string `json:"artifacts,omitempty"`

	// Fallbacks names variables that could not be structurally
	// converted and were stringified instead. Non-fatal.
	Fallbacks []string `json:"serialization_fallbacks,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// ImportDeniedError is raised into the script when it requests a module
// outside the allowlist.
type ImportDeniedError struct {
	Module string
}

func (e *ImportDeniedError) Error() string {
	return "import of '" + e.Module + "' is not allowed"
}
