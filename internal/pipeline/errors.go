package pipeline

import (
	"fmt"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/masktable"
)

// Stages named in ModelInferenceError.
const (
	StageSpotting     = "text_spotting"
	StageSegmentation = "segmentation"
	StageInpainting   = "inpainting"
)

// ImageFormatError reports an input image that cannot be processed.
type ImageFormatError struct {
	Reason string
}

func (e *ImageFormatError) Error() string { return "invalid image: " + e.Reason }

// ModelInferenceError wraps a failure of one of the model backends.
type ModelInferenceError struct {
	Stage string
	Err   error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ModelInferenceError) Unwrap() error { return e.Err }

// SelectionError reports an index that has no entry in the mask table.
type SelectionError struct {
	Index     int
	Available int
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection: index %d not found (%d regions available)", e.Index, e.Available)
}

// InvalidPromptError reports an empty or over-long prompt.
type InvalidPromptError = inpaint.InvalidPromptError

// MalformedMaskTableError reports a serialized mask table that cannot be decoded.
type MalformedMaskTableError = masktable.MalformedError
