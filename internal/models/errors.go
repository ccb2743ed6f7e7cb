package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChannelCount is returned when an image does not have exactly 3 channels
	ErrInvalidChannelCount = errors.New("invalid channel count")

	// ErrInvalidPatchSize is returned when tiling is requested with a non-positive patch size
	ErrInvalidPatchSize = errors.New("invalid patch size")

	// ErrInvalidPaddingSize is returned for a negative tile padding
	ErrInvalidPaddingSize = errors.New("invalid padding size")

	// ErrInvalidBatchSize is returned for a non-positive batch size
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidScale is returned when a model declares a non-positive scale factor
	ErrInvalidScale = errors.New("invalid scale factor")
)

// ModelInferenceError reports a failed model call for one batch group.
// Start and End delimit the patch indices [Start, End) of the group.
type ModelInferenceError struct {
	Group int
	Start int
	End   int
	Err   error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("model inference failed on group %d (patches %d-%d): %v", e.Group, e.Start, e.End-1, e.Err)
}

func (e *ModelInferenceError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports a model output whose shape differs from what the
// input geometry and scale factor imply. Index is the prediction index, or -1
// when the mismatch concerns the whole image.
type ShapeMismatchError struct {
	Index int
	Got   Shape
	Want  Shape
}

func (e *ShapeMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("shape mismatch: got %v, want %v", e.Got, e.Want)
	}
	return fmt.Sprintf("shape mismatch for prediction %d: got %v, want %v", e.Index, e.Got, e.Want)
}
