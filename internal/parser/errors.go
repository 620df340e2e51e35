package parser

import "fmt"

// FormatError indicates input that cannot be tokenized at all. Not retryable.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("format error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("format error: %s", e.Reason)
}

// NewFormatError creates a FormatError for a specific source line.
func NewFormatError(line int, reason string) *FormatError {
	return &FormatError{Line: line, Reason: reason}
}

// PipelineError indicates an unexpected internal fault. Not retryable
// without a fix.
type PipelineError struct {
	Stage  string
	Reason string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error in %s: %s", e.Stage, e.Reason)
}
