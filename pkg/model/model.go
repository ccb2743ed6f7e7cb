// Package model defines the capability the inference pipeline consumes from
// a super-resolution model, and a reference implementation backed by
// classical resampling kernels.
package model

import (
	"fmt"
	"sort"
	"strings"

	"srtile/internal/models"
)

// Model is a super-resolution model. Predict maps a batch of model-domain
// tensors to a batch of the same length and order, each output scaled by
// Scale() along both spatial axes.
type Model interface {
	Predict(batch []*models.Tensor) ([]*models.Tensor, error)
	Scale() int
}

// Describer is implemented by models that can name themselves and report
// their architecture parameters.
type Describer interface {
	Name() string
	Params() map[string]any
}

// Basename combines a model's name with its sorted parameters, for example
// "interp-filtercatmullrom-x2". Models without a description are named
// after their scale factor.
func Basename(m Model) string {
	d, ok := m.(Describer)
	if !ok {
		return fmt.Sprintf("model-x%d", m.Scale())
	}

	params := d.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{d.Name()}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s%v", k, params[k]))
	}
	return strings.Join(parts, "-")
}
