package geobbox

// Raster access and the geometry derived from a raster's georeference.

import (
	"fmt"
	"io"
	"math"
)

// Raster is a georeferenced multi-band pixel grid.
type Raster interface {
	io.Closer

	// BandCount is the number of bands.
	BandCount() int
	// Size is the pixel width and height.
	Size() (width, height int)
	// GeoTransform is the GDAL-style affine transform from pixel to map coordinates.
	GeoTransform() [6]float64
	// ReadBand returns the samples of the zero-based band i, row-major, width*height long.
	ReadBand(i int) ([]float64, error)
}

// OpenFunc opens the raster at path.
type OpenFunc func(path string) (Raster, error)

// MemRaster is an in-memory Raster.
type MemRaster struct {
	Width, Height int
	Transform     [6]float64
	Bands         [][]float64 // One row-major slice per band.
}

// BandCount implements Raster.
func (m *MemRaster) BandCount() int { return len(m.Bands) }

// Size implements Raster.
func (m *MemRaster) Size() (int, int) { return m.Width, m.Height }

// GeoTransform implements Raster.
func (m *MemRaster) GeoTransform() [6]float64 { return m.Transform }

// ReadBand implements Raster.
func (m *MemRaster) ReadBand(i int) ([]float64, error) {
	if i < 0 || i >= len(m.Bands) {
		return nil, fmt.Errorf("band %d out of range [0, %d): %w", i, len(m.Bands), ErrRasterRead)
	}
	if len(m.Bands[i]) != m.Width*m.Height {
		return nil, fmt.Errorf("band %d has %d samples, want %d: %w",
			i, len(m.Bands[i]), m.Width*m.Height, ErrRasterRead)
	}
	return m.Bands[i], nil
}

// Close implements Raster.
func (m *MemRaster) Close() error { return nil }

// RasterGeometry is the geographic extent and pixel resolution of one raster. It is computed once
// per conversion and passed to every step that needs it.
type RasterGeometry struct {
	Left, Right, Top, Bottom float64 // Bounds in map units.
	Width, Height            int     // Size in pixels.
	Scale                    float64 // Pixels per map unit, Width / (Right - Left).
}

// NewRasterGeometry derives the bounds and the pixel scale of r.
//
// Bounds assume a north-up geotransform: the rotation terms are ignored, as the annotation rings
// are axis-aligned rectangles anyway.
func NewRasterGeometry(r Raster) (RasterGeometry, error) {
	w, h := r.Size()
	gt := r.GeoTransform()

	g := RasterGeometry{
		Left:   gt[0],
		Top:    gt[3],
		Right:  gt[0] + gt[1]*float64(w),
		Bottom: gt[3] + gt[5]*float64(h),
		Width:  w,
		Height: h,
	}
	if w <= 0 || h <= 0 {
		return RasterGeometry{}, fmt.Errorf("raster size %dx%d: %w", w, h, ErrDegenerateRasterExtent)
	}

	span := g.Right - g.Left
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return RasterGeometry{}, fmt.Errorf("horizontal span %v: %w", span, ErrDegenerateRasterExtent)
	}
	g.Scale = float64(w) / span

	return g, nil
}

// Contains reports whether (x, y) lies within the bounds, edges included.
func (g RasterGeometry) Contains(x, y float64) bool {
	return g.Left <= x && x <= g.Right && g.Bottom <= y && y <= g.Top
}
