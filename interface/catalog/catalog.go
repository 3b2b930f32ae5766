package catalog

import (
	"context"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
)

// ExportRequest describes one scene export
type ExportRequest struct {
	Area       common.AreaOfInterest `json:"area"`
	CRS        string                `json:"crs"`
	Transform  common.GeoTransform   `json:"transform"`
	Resampling string                `json:"resampling"`
	Bands      []string              `json:"bands"`
	// DNScale is the divisor applied to digital numbers before export
	// (10000 turns Sentinel-2 DNs into reflectance fractions)
	DNScale float64 `json:"dn_scale"`
}

// SceneAPI is the remote catalog/export collaborator. All calls are
// potentially slow, potentially failing remote calls; retrying is up to the caller.
type SceneAPI interface {
	// SearchScenes returns the candidate scenes of the area, ascending by acquisition time
	SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error)

	// CountValidPixels counts the pixels of band carrying an unmasked value
	// inside aoi, at the given ground sampling distance
	CountValidPixels(ctx context.Context, scene *entities.Scene, band string, aoi common.AreaOfInterest, scale float64) (int64, error)

	// CountReferencePixels counts the pixels of an all-valid raster clipped to
	// aoi at the same ground sampling distance, on the scene's native grid
	CountReferencePixels(ctx context.Context, scene *entities.Scene, aoi common.AreaOfInterest, scale float64) (int64, error)

	// ExportScene requests the resampled export and returns a download URL
	ExportScene(ctx context.Context, scene *entities.Scene, req ExportRequest) (string, error)
}
