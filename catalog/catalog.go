package catalog

import (
	"fmt"

	"github.com/geoharvest/scene-downloader/interface/catalog"
)

// Catalog is the main class of this package
type Catalog struct {
	API catalog.SceneAPI
}

// ErrInvalidBand is returned when a scene doesn't carry the requested band
type ErrInvalidBand struct {
	Band  string
	Scene string
}

func (e ErrInvalidBand) Error() string {
	return fmt.Sprintf("band %s is not available in scene %s", e.Band, e.Scene)
}

// ErrDegenerateGeometry is returned when the area of interest has no extent
type ErrDegenerateGeometry struct {
	Reason string
}

func (e ErrDegenerateGeometry) Error() string {
	return fmt.Sprintf("degenerate area of interest: %s", e.Reason)
}
