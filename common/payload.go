package common

import (
	"fmt"
	"time"
)

const (
	ResultTypeScene = "scene"

	// SensorSentinel2 is the sensor tag used in product names
	SensorSentinel2 = "Sentinel2"

	// ReflectanceScale is the divisor turning digital numbers into reflectance fractions
	ReflectanceScale = 10000.0
)

// AreaOfInterest is the rectangular geographic region of one run, in degrees
type AreaOfInterest struct {
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
}

// Validate checks the corner ordering
func (aoi AreaOfInterest) Validate() error {
	if aoi.LonMin >= aoi.LonMax {
		return fmt.Errorf("invalid aoi: lon_min (%g) must be lower than lon_max (%g)", aoi.LonMin, aoi.LonMax)
	}
	if aoi.LatMin >= aoi.LatMax {
		return fmt.Errorf("invalid aoi: lat_min (%g) must be lower than lat_max (%g)", aoi.LatMin, aoi.LatMax)
	}
	return nil
}

// Area in square degrees
func (aoi AreaOfInterest) Area() float64 {
	return (aoi.LonMax - aoi.LonMin) * (aoi.LatMax - aoi.LatMin)
}

// WKT returns the closed rectangle polygon
func (aoi AreaOfInterest) WKT() string {
	return fmt.Sprintf("POLYGON((%g %g,%g %g,%g %g,%g %g,%g %g))",
		aoi.LonMin, aoi.LatMin,
		aoi.LonMax, aoi.LatMin,
		aoi.LonMax, aoi.LatMax,
		aoi.LonMin, aoi.LatMax,
		aoi.LonMin, aoi.LatMin)
}

// DateRange is an inclusive calendar interval
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (dr DateRange) Validate() error {
	if dr.End.Before(dr.Start) {
		return fmt.Errorf("invalid date range: start (%s) must not be after end (%s)",
			dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
	}
	return nil
}

// CoverageResult pairs the valid and total pixel counts of one evaluation.
// Both counts are computed over the same clipped AOI at the same scale.
type CoverageResult struct {
	Valid int64   `json:"valid_pixel_count"`
	Total int64   `json:"total_pixel_count"`
	Ratio float64 `json:"ratio"`
}

// NewCoverageResult computes the ratio, enforcing a positive denominator
func NewCoverageResult(valid, total int64) (CoverageResult, error) {
	if total <= 0 {
		return CoverageResult{}, fmt.Errorf("coverage: total pixel count must be positive, got %d", total)
	}
	if valid < 0 {
		return CoverageResult{}, fmt.Errorf("coverage: valid pixel count must not be negative, got %d", valid)
	}
	return CoverageResult{Valid: valid, Total: total, Ratio: float64(valid) / float64(total)}, nil
}

// SceneAttrs are the attributes of a catalogued scene
type SceneAttrs struct {
	UUID        string   `json:"uuid"`
	TimestampMs int64    `json:"timestamp_ms"`
	Bands       []string `json:"bands"`
}

// Time returns the acquisition time (UTC)
func (a SceneAttrs) Time() time.Time {
	return time.UnixMilli(a.TimestampMs).UTC()
}

// Scene is one candidate scene of the catalog
type Scene struct {
	ID       int        `json:"id"`
	SourceID string     `json:"source_id"`
	AOI      string     `json:"aoi"`
	Data     SceneAttrs `json:"data,omitempty"`
}

// AcceptedScene is a scene that passed the coverage gate, together with
// everything the downloader needs to export it. It is the job-queue payload.
type AcceptedScene struct {
	Scene         Scene          `json:"scene"`
	Timestamp     time.Time      `json:"timestamp"`
	Area          AreaOfInterest `json:"area"`
	Transform     GeoTransform   `json:"transform"`
	CoverageRatio float64        `json:"coverage_ratio"`
}

// Result is the event published after a scene job
type Result struct {
	Type    string `json:"type"`
	ID      int    `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}
