package tiling

import (
	"context"
	"fmt"

	"srtile/internal/models"
)

// Predictor is the part of a model the batch executor needs. Predict must
// return one output per input, in input order.
type Predictor interface {
	Predict(batch []*models.Tensor) ([]*models.Tensor, error)
}

// Observer receives progress notifications from the tiled pipeline.
// Implementations must not modify the tensors they are handed.
type Observer interface {
	// PatchesCreated is called once per image after splitting
	PatchesCreated(patches []*models.Tensor, grid Grid)

	// BatchDone is called after each group, with the number of patches
	// predicted so far
	BatchDone(group, done, total int)
}

// NopObserver ignores all notifications
type NopObserver struct{}

func (NopObserver) PatchesCreated([]*models.Tensor, Grid) {}
func (NopObserver) BatchDone(int, int, int)                {}

// RunBatches runs the model over patches in consecutive groups of at most
// batchSize, one blocking call per group, and returns the outputs in patch
// order. Groups are issued sequentially so that no more than batchSize
// patches are in the model at once.
//
// A failing group aborts the run with a *models.ModelInferenceError and no
// partial output. The context is only consulted between groups.
func RunBatches(ctx context.Context, m Predictor, patches []*models.Tensor, batchSize int, obs Observer) ([]*models.Tensor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidBatchSize, batchSize)
	}
	if obs == nil {
		obs = NopObserver{}
	}

	predictions := make([]*models.Tensor, 0, len(patches))
	for group, start := 0, 0; start < len(patches); group, start = group+1, start+batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("inference cancelled before group %d: %w", group, err)
		}

		end := min(start+batchSize, len(patches))
		outputs, err := m.Predict(patches[start:end:end])
		if err != nil {
			return nil, &models.ModelInferenceError{Group: group, Start: start, End: end, Err: err}
		}
		if len(outputs) != end-start {
			return nil, &models.ModelInferenceError{
				Group: group,
				Start: start,
				End:   end,
				Err:   fmt.Errorf("model returned %d outputs for %d inputs", len(outputs), end-start),
			}
		}

		predictions = append(predictions, outputs...)
		obs.BatchDone(group, len(predictions), len(patches))
	}
	return predictions, nil
}
