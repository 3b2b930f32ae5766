package common

import "fmt"

// GeoTransform is the six-parameter affine mapping from pixel indices to
// geographic coordinates:
//
//	x = XOrigin + col*XScale + row*XShear
//	y = YOrigin + col*YShear + row*YScale
//
// YScale is negative: rows grow southward while latitude grows northward.
type GeoTransform struct {
	XScale  float64 `json:"x_scale"`
	XShear  float64 `json:"x_shear"`
	XOrigin float64 `json:"x_origin"`
	YShear  float64 `json:"y_shear"`
	YScale  float64 `json:"y_scale"`
	YOrigin float64 `json:"y_origin"`
}

// DeriveTransform builds the export transform of a run: north-up grid of the
// given resolution anchored at the AOI's top-left corner. Every scene accepted
// for the same AOI shares it, so exports are pixel-grid aligned.
func DeriveTransform(resolution float64, aoi AreaOfInterest) GeoTransform {
	return GeoTransform{
		XScale:  resolution,
		XOrigin: aoi.LonMin,
		YScale:  -resolution,
		YOrigin: aoi.LatMax,
	}
}

// Validate returns an error unless the transform is an invertible north-up-ish
// mapping with the mandatory negative YScale
func (t GeoTransform) Validate() error {
	if t.XScale == 0 {
		return fmt.Errorf("invalid transform: x_scale must not be zero")
	}
	if t.YScale >= 0 {
		return fmt.Errorf("invalid transform: y_scale must be negative, got %g", t.YScale)
	}
	return nil
}

// Apply maps a (col, row) pixel index to geographic coordinates
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	return t.XOrigin + col*t.XScale + row*t.XShear,
		t.YOrigin + col*t.YShear + row*t.YScale
}

// ShiftOrigin returns the transform of a buffer whose pixel (0,0) was pixel
// (cols, rows) of the original buffer
func (t GeoTransform) ShiftOrigin(cols, rows int) GeoTransform {
	t.XOrigin, t.YOrigin = t.Apply(float64(cols), float64(rows))
	return t
}

// Array returns the GDAL ordering [XOrigin, XScale, XShear, YOrigin, YShear, YScale]
func (t GeoTransform) Array() [6]float64 {
	return [6]float64{t.XOrigin, t.XScale, t.XShear, t.YOrigin, t.YShear, t.YScale}
}

// TransformFromArray is the inverse of Array
func TransformFromArray(gt [6]float64) GeoTransform {
	return GeoTransform{
		XOrigin: gt[0], XScale: gt[1], XShear: gt[2],
		YOrigin: gt[3], YShear: gt[4], YScale: gt[5],
	}
}
