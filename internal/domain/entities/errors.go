package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrConfigParse       = errors.New("malformed models configuration")
	ErrDescriptorInvalid = errors.New("invalid pipeline descriptor")
	ErrLoadFailed        = errors.New("pipeline load failed")
	ErrUnknownPipeline   = errors.New("unknown pipeline")
	ErrBatchTooLarge     = errors.New("batch too large")
	ErrTextTooLong       = errors.New("text too long")
	ErrUnsupportedFields = errors.New("unsupported fields")
	ErrProcessingFailed  = errors.New("processing failed")
)

// UnknownPipelineError carries the names that are registered.
type UnknownPipelineError struct {
	Name      string
	Available []string
}

func (e *UnknownPipelineError) Error() string {
	return fmt.Sprintf("Model '%s' not found", e.Name)
}

func (e *UnknownPipelineError) Is(target error) bool { return target == ErrUnknownPipeline }

type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("Batch size %d exceeds maximum %d", e.Size, e.Max)
}

func (e *BatchTooLargeError) Is(target error) bool { return target == ErrBatchTooLarge }

// TextTooLongError identifies the first offending text by index.
type TextTooLongError struct {
	Index int
	Max   int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("Text at index %d exceeds maximum length %d", e.Index, e.Max)
}

func (e *TextTooLongError) Is(target error) bool { return target == ErrTextTooLong }

type UnsupportedFieldsError struct {
	Invalid   []string
	Supported []string
}

func (e *UnsupportedFieldsError) Error() string {
	return "Invalid fields: " + strings.Join(e.Invalid, ", ")
}

func (e *UnsupportedFieldsError) Is(target error) bool { return target == ErrUnsupportedFields }

// ProcessingError wraps a failure raised by the pipeline itself.
type ProcessingError struct {
	Pipeline string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing with %q: %v", e.Pipeline, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Is(target error) bool { return target == ErrProcessingFailed }
