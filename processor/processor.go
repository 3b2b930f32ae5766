package processor

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/service/log"
)

// ErrBufferTooSmall is returned when a raster is too small to crop
type ErrBufferTooSmall struct {
	Height, Width int
}

func (e ErrBufferTooSmall) Error() string {
	return fmt.Sprintf("raster %dx%d is too small to crop a one-pixel border", e.Width, e.Height)
}

// RasterBuffer is an in-memory multi-band raster, band-major
// (Data[b*Height*Width + row*Width + col])
type RasterBuffer[T any] struct {
	Bands, Height, Width int
	Data                 []T
}

// Trim returns a copy of the raster without its outermost ring of pixels.
// The resampled edge pixels only partially overlap the area of interest, so
// their values blend with whatever lies outside it.
func Trim[T any](b RasterBuffer[T]) (RasterBuffer[T], error) {
	if b.Height < 3 || b.Width < 3 {
		return RasterBuffer[T]{}, ErrBufferTooSmall{Height: b.Height, Width: b.Width}
	}
	if len(b.Data) != b.Bands*b.Height*b.Width {
		return RasterBuffer[T]{}, fmt.Errorf("trim: buffer has %d samples, expected %d", len(b.Data), b.Bands*b.Height*b.Width)
	}

	out := RasterBuffer[T]{
		Bands:  b.Bands,
		Height: b.Height - 2,
		Width:  b.Width - 2,
	}
	out.Data = make([]T, out.Bands*out.Height*out.Width)
	for band := 0; band < b.Bands; band++ {
		src := b.Data[band*b.Height*b.Width : (band+1)*b.Height*b.Width]
		dst := out.Data[band*out.Height*out.Width : (band+1)*out.Height*out.Width]
		for row := 0; row < out.Height; row++ {
			copy(dst[row*out.Width:(row+1)*out.Width], src[(row+1)*b.Width+1:(row+1)*b.Width+1+out.Width])
		}
	}
	return out, nil
}

// CorrectedTransform is the grid of a raster cropped by one pixel on each side
func CorrectedTransform(transform common.GeoTransform) common.GeoTransform {
	return transform.ShiftOrigin(1, 1)
}

// ProcessFile crops the one-pixel border of the GeoTiff at path and rewrites
// it in place with the corrected georeferencing. Pixel values, band count and
// data type are untouched.
func ProcessFile(ctx context.Context, path string, transform common.GeoTransform) error {
	if err := transform.Validate(); err != nil {
		return fmt.Errorf("ProcessFile.%w", err)
	}

	ds, err := godal.Open(path)
	if err != nil {
		return fmt.Errorf("ProcessFile.Open: %w", err)
	}

	structure := ds.Structure()
	if structure.SizeY < 3 || structure.SizeX < 3 {
		ds.Close()
		return fmt.Errorf("ProcessFile[%s]: %w", path, ErrBufferTooSmall{Height: structure.SizeY, Width: structure.SizeX})
	}
	width, height := structure.SizeX-2, structure.SizeY-2

	// Read the inner window of each band in its own data type, keeping its
	// nodata value when it declares one
	datatype := ds.Bands()[0].Structure().DataType
	buffers := make([]interface{}, len(ds.Bands()))
	nodata := make([]*float64, len(ds.Bands()))
	for i, band := range ds.Bands() {
		if nd, ok := band.NoData(); ok {
			nodata[i] = &nd
		}
		buffers[i] = makeBuffer(band.Structure().DataType, width*height)
		if err := band.Read(1, 1, buffers[i], width, height); err != nil {
			ds.Close()
			return fmt.Errorf("ProcessFile.Read: %w", err)
		}
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("ProcessFile.Close: %w", err)
	}

	corrected := CorrectedTransform(transform)
	log.Logger(ctx).Sugar().Debugf("crop %s to %dx%d, origin (%v, %v)", path, width, height, corrected.XOrigin, corrected.YOrigin)

	out, err := godal.Create(godal.GTiff, path, len(buffers), datatype, width, height, godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("ProcessFile.Create: %w", err)
	}
	if err := out.SetGeoTransform(corrected.Array()); err != nil {
		out.Close()
		return fmt.Errorf("ProcessFile.SetGeoTransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		out.Close()
		return fmt.Errorf("ProcessFile.NewSpatialRef: %w", err)
	}
	defer sr.Close()
	if err := out.SetSpatialRef(sr); err != nil {
		out.Close()
		return fmt.Errorf("ProcessFile.SetSpatialRef: %w", err)
	}
	for i, band := range out.Bands() {
		if nodata[i] != nil {
			if err := band.SetNoData(*nodata[i]); err != nil {
				out.Close()
				return fmt.Errorf("ProcessFile.SetNoData: %w", err)
			}
		}
		if err := band.Write(0, 0, buffers[i], width, height); err != nil {
			out.Close()
			return fmt.Errorf("ProcessFile.Write: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("ProcessFile.Close: %w", err)
	}
	return nil
}

func makeBuffer(datatype godal.DataType, n int) interface{} {
	switch datatype {
	case godal.Byte:
		return make([]byte, n)
	case godal.Int16:
		return make([]int16, n)
	case godal.UInt16:
		return make([]uint16, n)
	case godal.Int32:
		return make([]int32, n)
	case godal.UInt32:
		return make([]uint32, n)
	case godal.Float64:
		return make([]float64, n)
	default:
		return make([]float32, n)
	}
}
