package catalog

import (
	"context"
	"fmt"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
)

// Evaluate measures the share of valid pixels of a scene over the area of
// interest. Valid and reference pixels are counted at the same scale so that
// the ratio compares like with like. A scene that doesn't overlap the area has
// a null ratio, not an error.
func (c *Catalog) Evaluate(ctx context.Context, scene *entities.Scene, aoi common.AreaOfInterest, band string, scale float64) (common.CoverageResult, error) {
	if err := aoi.Validate(); err != nil {
		return common.CoverageResult{}, ErrDegenerateGeometry{Reason: err.Error()}
	}
	if aoi.Area() == 0 {
		return common.CoverageResult{}, ErrDegenerateGeometry{Reason: "null area"}
	}
	if !hasBand(scene, band) {
		return common.CoverageResult{}, ErrInvalidBand{Band: band, Scene: scene.SourceID}
	}

	valid, err := c.API.CountValidPixels(ctx, scene, band, aoi, scale)
	if err != nil {
		return common.CoverageResult{}, fmt.Errorf("Evaluate.%w", err)
	}
	total, err := c.API.CountReferencePixels(ctx, scene, aoi, scale)
	if err != nil {
		return common.CoverageResult{}, fmt.Errorf("Evaluate.%w", err)
	}

	coverage, err := common.NewCoverageResult(valid, total)
	if err != nil {
		return common.CoverageResult{}, fmt.Errorf("Evaluate.%w", err)
	}
	return coverage, nil
}

func hasBand(scene *entities.Scene, band string) bool {
	for _, b := range scene.Data.Bands {
		if b == band {
			return true
		}
	}
	return false
}
