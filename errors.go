package distill

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType          = "invalid_type"
	CodeRequired             = "required"
	CodeParseError           = "parse_error"
	CodeSourcingFailed       = "sourcing_failed"
	CodeCoercionFailed       = "coercion_failed"
	CodeValidationFailed     = "validation_failed"
	CodeTransformFailed      = "transform_failed"
	CodeNoMatch              = "no_match"
	CodeAmbiguousMatch       = "ambiguous_match"
	CodeDiscriminatorMissing = "discriminator_missing"
	CodeDiscriminatorUnknown = "discriminator_unknown"
	CodeCrossRule            = "cross_rule"
)

// Issue represents a single data-level failure for one field.
type Issue struct {
	Path    string // JSON Pointer (for example: /items/2/price).
	Code    string // One of the codes listed above.
	Message string
	// Rule records the name of the stage or rule that produced this issue.
	Rule string
	// Value is the offending value as it stood when the stage rejected it.
	Value any
	// Examples optionally lists acceptable values. Matchers fill it with their
	// candidate keys so a caller (human or model) can repair the input.
	Examples []any
	Cause    error // Optional: underlying error.
	// Params carries structured parameters (e.g., {"threshold":0.8, "best":0.41})
	// for observability and automated repair.
	Params map[string]any
}

// Issues is a collection of data errors that implements error.
//
// Data errors are recoverable in principle: each carries the field path, the
// rule that fired, the offending value and example hints, so a retry loop or
// an operator can fix the input and run again. Contrast ConfigError.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. no_match at /country
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// IssueAt reports whether any issue targets the given path.
func IssueAt(iss Issues, path string) bool {
	for _, it := range iss {
		if it.Path == path {
			return true
		}
	}
	return false
}

// Sentinel kinds for ConfigError. Use errors.Is to classify.
var (
	ErrConfig        = errors.New("invalid configuration")
	ErrCycle         = errors.New("dependency cycle")
	ErrOscillation   = errors.New("oscillation detected")
	ErrNoConvergence = errors.New("no convergence")
)

// ConfigError reports a defect in the schema or execution setup: a dependency
// cycle under the single-pass strategy, oscillating fields, iteration budget
// exhaustion, or a malformed pipeline. These point at the declaration rather
// than the data; no amount of retrying the same input can clear them.
type ConfigError struct {
	Kind error
	Msg  string
	// Fields names the fields involved, in deterministic order.
	Fields []string
	// Cycle holds one witness path when Kind is ErrCycle (a -> b -> a).
	Cycle []string
	// History maps field name to its observed value cycle when Kind is
	// ErrOscillation.
	History map[string][]any
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func configf(kind error, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// AsConfigError extracts a ConfigError from an error chain.
func AsConfigError(err error) (*ConfigError, bool) {
	if err == nil {
		return nil, false
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
