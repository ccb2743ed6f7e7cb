package predictor

import (
	"log/slog"

	"srtile/internal/models"
	"srtile/pkg/tiling"
)

// logObserver reports tiling progress through the predictor's logger
type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) PatchesCreated(patches []*models.Tensor, grid tiling.Grid) {
	o.logger.Info("split into patches",
		"patches", len(patches), "patchSize", grid.PatchSize, "rows", grid.Rows, "cols", grid.Cols)
}

func (o *logObserver) BatchDone(group, done, total int) {
	o.logger.Debug("processing patches", "group", group, "done", done, "total", total)
}

// multiObserver forwards every notification to each of its observers
type multiObserver []tiling.Observer

func (m multiObserver) PatchesCreated(patches []*models.Tensor, grid tiling.Grid) {
	for _, o := range m {
		o.PatchesCreated(patches, grid)
	}
}

func (m multiObserver) BatchDone(group, done, total int) {
	for _, o := range m {
		o.BatchDone(group, done, total)
	}
}
