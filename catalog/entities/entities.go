package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/service"
)

// DefaultBands are the bands downloaded when the area doesn't name any.
// The first one is the reference band of the coverage evaluation.
var DefaultBands = []string{"B2", "B3", "B4", "B8"}

const (
	// DefaultCoverageThreshold is the minimum valid-pixel ratio of an accepted scene
	DefaultCoverageThreshold = 0.99
	// DefaultResampleResolution is the export resolution in degrees (~10m at the equator)
	DefaultResampleResolution = 0.00008983
	// DefaultReferenceScale is the native ground sampling distance (meters) of the coverage counts
	DefaultReferenceScale = 10.0
)

// Area is the input of a run. The selection knobs default to the catalog's
// configuration when left at their zero value.
type Area struct {
	AOIID     string                `json:"aoi"`
	AOI       common.AreaOfInterest `json:"area"`
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time"`

	Bands              []string `json:"bands,omitempty"`
	CoverageThreshold  float64  `json:"coverage_ratio_threshold,omitempty"`
	ResampleResolution float64  `json:"resample_resolution,omitempty"`
	ReferenceScale     float64  `json:"reference_scale,omitempty"`

	// Paging of the catalog query (0-based page)
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// UnmarshalJSON accepts the dates in any reasonable format ("2025-08-03",
// RFC3339, ...)
func (a *Area) UnmarshalJSON(data []byte) error {
	type alias Area
	aux := struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		*alias
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if aux.StartTime != "" {
		if a.StartTime, err = dateparse.ParseAny(aux.StartTime); err != nil {
			return fmt.Errorf("area %s: start_time: %w", a.AOIID, err)
		}
	}
	if aux.EndTime != "" {
		if a.EndTime, err = dateparse.ParseAny(aux.EndTime); err != nil {
			return fmt.Errorf("area %s: end_time: %w", a.AOIID, err)
		}
	}
	return nil
}

// Validate checks the configuration-level invariants that abort a run
func (a *Area) Validate() error {
	if a.AOIID == "" {
		return fmt.Errorf("area: missing aoi id")
	}
	if err := a.AOI.Validate(); err != nil {
		return fmt.Errorf("area %s: %w", a.AOIID, err)
	}
	if err := (common.DateRange{Start: a.StartTime, End: a.EndTime}).Validate(); err != nil {
		return fmt.Errorf("area %s: %w", a.AOIID, err)
	}
	if a.CoverageThreshold < 0 || a.CoverageThreshold > 1 {
		return fmt.Errorf("area %s: coverage_ratio_threshold must be in [0,1], got %g", a.AOIID, a.CoverageThreshold)
	}
	if a.ResampleResolution < 0 || a.ReferenceScale < 0 {
		return fmt.Errorf("area %s: resolutions must be positive", a.AOIID)
	}
	bands := service.StringSet{}
	for _, band := range a.Bands {
		if bands.Exists(band) {
			return fmt.Errorf("area %s: duplicate band %s", a.AOIID, band)
		}
		bands.Push(band)
	}
	return nil
}

// FillDefaults replaces zero-valued knobs by the run defaults
func (a *Area) FillDefaults() {
	if len(a.Bands) == 0 {
		a.Bands = DefaultBands
	}
	if a.CoverageThreshold == 0 {
		a.CoverageThreshold = DefaultCoverageThreshold
	}
	if a.ResampleResolution == 0 {
		a.ResampleResolution = DefaultResampleResolution
	}
	if a.ReferenceScale == 0 {
		a.ReferenceScale = DefaultReferenceScale
	}
}

// DateRange of the area
func (a *Area) DateRange() common.DateRange {
	return common.DateRange{Start: a.StartTime, End: a.EndTime}
}

// ReferenceBand of the coverage evaluation (first band of the list)
func (a *Area) ReferenceBand() string {
	if len(a.Bands) == 0 {
		return DefaultBands[0]
	}
	return a.Bands[0]
}

// Scene is a specialisation of common.Scene for the catalog
type Scene struct {
	common.Scene
	Tags        map[string]string `json:"tags,omitempty"`
	GeometryWKT string            `json:"geometry_wkt,omitempty"`
}

// Scenes is the result of a catalog search
type Scenes struct {
	Scenes     []*Scene          `json:"scenes"`
	Properties map[string]string `json:"properties,omitempty"`
}
