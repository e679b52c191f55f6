package geobbox

import "errors"

var (
	ErrInvalidGeoJSON         = errors.New("invalid GeoJSON")
	ErrDegenerateRasterExtent = errors.New("degenerate raster extent")
	ErrRasterOpen             = errors.New("raster open failed")
	ErrRasterRead             = errors.New("raster read failed")
	ErrRasterWrite            = errors.New("raster write failed")
	ErrInvalidBandCount       = errors.New("invalid band count")
	ErrUnsupportedBandCount   = errors.New("unsupported band count for image encoding")
	ErrBandVerification       = errors.New("band count verification failed")
	ErrShortRing              = errors.New("ring has fewer than three vertices")
	ErrCSVSchema              = errors.New("unexpected CSV schema")
	ErrInvalidConfig          = errors.New("invalid config")
	ErrInvalidLabelMap        = errors.New("invalid label map")
)
