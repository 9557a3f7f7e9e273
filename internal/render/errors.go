package render

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound    = errors.New("source not found")
	ErrExternalTool      = errors.New("external tool failure")
	ErrEmptyOutput       = errors.New("empty output")
	ErrInvalidKey        = errors.New("invalid cache key")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrBusy              = errors.New("cache key is being converted by another process")
	ErrFormatConflict    = errors.New("cache key is bound to another format")
)

// Failure reasons carried by ConversionError.
const (
	ReasonMissingOutput     = "missing-output"
	ReasonTimeout           = "timeout"
	ReasonCanceled          = "canceled"
	ReasonEmptyOutput       = "empty-output"
	ReasonPageCountMismatch = "page-count-mismatch"
	ReasonExitStatus        = "exit-status"
	ReasonUnexpectedOutput  = "unexpected-output"
)

// SourceNotFoundError means the input path did not exist when the conversion started.
type SourceNotFoundError struct {
	Path string
	Err  error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source document not found: %s", e.Path)
}

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// ConversionError is a failed stage. Reason empty-output matches ErrEmptyOutput,
// every other reason matches ErrExternalTool.
type ConversionError struct {
	Stage  string
	Reason string
	Key    string
	Output string // renderer output, diagnostics only
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("conversion of %q failed at stage %s (%s)", e.Key, e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Is(target error) bool {
	if e.Reason == ReasonEmptyOutput {
		return target == ErrEmptyOutput
	}
	return target == ErrExternalTool
}

func (e *ConversionError) Unwrap() error { return e.Err }
