package common

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// product name layout: <sensor>_<lon_min•2f>E_<lat_max•2f>N_<YYYY-MM-DD_HH-MM-SS>.tif
const productTimeFormat = "2006-01-02_15-04-05"

var productNameRe = regexp.MustCompile(`^([A-Za-z0-9]+)_(-?\d+\.\d{2})E_(-?\d+\.\d{2})N_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})\.tif$`)

// ProductName returns the deterministic file name of an exported scene.
// It is derived from the AOI top-left corner and the acquisition time (UTC),
// so re-running the same area and range overwrites rather than duplicates.
func ProductName(sensor string, aoi AreaOfInterest, t time.Time) string {
	return fmt.Sprintf("%s_%.2fE_%.2fN_%s.tif", sensor, aoi.LonMin, aoi.LatMax, t.UTC().Format(productTimeFormat))
}

// ProductInfo is the information recoverable from a product name
type ProductInfo struct {
	Sensor string
	LonMin float64
	LatMax float64
	Date   time.Time
}

// ParseProductName recovers the product information from a file name
func ParseProductName(name string) (ProductInfo, error) {
	m := productNameRe.FindStringSubmatch(name)
	if m == nil {
		return ProductInfo{}, fmt.Errorf("invalid product name: %s", name)
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("invalid product name %s: %w", name, err)
	}
	lat, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("invalid product name %s: %w", name, err)
	}
	date, err := time.Parse(productTimeFormat, m[4])
	if err != nil {
		return ProductInfo{}, fmt.Errorf("invalid product name %s: %w", name, err)
	}
	return ProductInfo{Sensor: m[1], LonMin: lon, LatMax: lat, Date: date}, nil
}
