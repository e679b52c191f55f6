package geobbox

// GeoJSON rectangle to pixel bounding box conversion.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sensorable/geobbox/log"

	"go.uber.org/zap"
)

// XMaxFormula selects how the right edge of a box is mapped to pixels.
type XMaxFormula int

const (
	// XMaxMirrored computes (Right - XMax) * Scale. This is the formula existing datasets were
	// generated with; it measures from the right edge of the raster and so mirrors the value.
	XMaxMirrored XMaxFormula = iota
	// XMaxOffset computes (XMax - Left) * Scale, consistent with xmin.
	XMaxOffset
)

// ParseXMaxFormula parses "mirrored" or "offset". The empty string is XMaxMirrored.
func ParseXMaxFormula(s string) (XMaxFormula, error) {
	switch strings.ToLower(s) {
	case "", "mirrored":
		return XMaxMirrored, nil
	case "offset":
		return XMaxOffset, nil
	}
	return XMaxMirrored, fmt.Errorf("unknown xmax formula %q: %w", s, ErrInvalidConfig)
}

func (f XMaxFormula) String() string {
	if f == XMaxOffset {
		return "offset"
	}
	return "mirrored"
}

// GeoBox is an axis-aligned rectangle in map units.
type GeoBox struct {
	XMin, YMin, XMax, YMax float64
}

// NewGeoBox reads the box from the first three vertices of a rectangular ring: the minimum corner
// is vertex 0, XMax comes from vertex 2 and YMax from vertex 1.
func NewGeoBox(ring Ring) (GeoBox, error) {
	if len(ring) < 3 {
		return GeoBox{}, fmt.Errorf("%d vertices: %w", len(ring), ErrShortRing)
	}
	return GeoBox{
		XMin: ring[0].X,
		YMin: ring[0].Y,
		XMax: ring[2].X,
		YMax: ring[1].Y,
	}, nil
}

// ValidFeatureIDs returns the IDs of the features whose first vertex lies within the raster
// bounds, one entry per accepted feature. Features without coordinates are skipped.
//
// Only the first vertex is tested, so a feature that merely starts inside the raster is accepted.
func ValidFeatureIDs(features []AnnotationFeature, geom RasterGeometry) []FeatureID {
	var ids []FeatureID
	for _, f := range features {
		v, ok := f.FirstVertex()
		if !ok {
			continue
		}
		if geom.Contains(v.X, v.Y) {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// FeatureRings collects, for each ID in order, the first ring of every feature carrying that ID.
func FeatureRings(ids []FeatureID, features []AnnotationFeature) []Ring {
	var rings []Ring
	for _, id := range ids {
		for _, f := range features {
			if f.ID == id && len(f.Rings) > 0 {
				rings = append(rings, f.Rings[0])
			}
		}
	}
	return rings
}

// PixelBox maps box into the raster's pixel space as x1, y1, x2, y2 with the origin at the
// top-left corner, clamped to the raster size.
func PixelBox(geom RasterGeometry, box GeoBox, formula XMaxFormula) [4]float64 {
	xmin := (box.XMin - geom.Left) * geom.Scale
	ymin := (geom.Top - box.YMax) * geom.Scale
	var xmax float64
	if formula == XMaxOffset {
		xmax = (box.XMax - geom.Left) * geom.Scale
	} else {
		xmax = (geom.Right - box.XMax) * geom.Scale
	}
	ymax := (geom.Top - box.YMin) * geom.Scale

	w, h := float64(geom.Width), float64(geom.Height)
	return [4]float64{clamp(xmin, w), clamp(ymin, h), clamp(xmax, w), clamp(ymax, h)}
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Converter turns GeoJSON annotations into pixel bounding boxes for one raster at a time.
type Converter struct {
	Open       OpenFunc
	IDProperty string // DefaultIDProperty if empty.
	Encoding   string // Character encoding of the GeoJSON files; UTF-8 if empty.
	XMax       XMaxFormula
}

const converterLogTag = "Converter:"

// Convert returns the pixel boxes, labelled label, for the features of the GeoJSON file that fall
// on the image, along with the image's geometry.
func (c *Converter) Convert(geojsonPath, imagePath, label string) (AnnotatedFile, RasterGeometry, error) {
	features, err := ReadFeatureCollection(geojsonPath, c.IDProperty, c.Encoding)
	if err != nil {
		return AnnotatedFile{}, RasterGeometry{}, err
	}

	geom, err := c.rasterGeometry(imagePath)
	if err != nil {
		return AnnotatedFile{}, RasterGeometry{}, err
	}
	log.Info(converterLogTag+"raster geometry", zap.String("image", imagePath),
		zap.Float64("left", geom.Left), zap.Float64("right", geom.Right),
		zap.Float64("top", geom.Top), zap.Float64("bottom", geom.Bottom),
		zap.Int("width", geom.Width), zap.Int("height", geom.Height), zap.Float64("scale", geom.Scale))

	ids := ValidFeatureIDs(features, geom)
	rings := FeatureRings(ids, features)
	log.Info(converterLogTag+"features on image", zap.Int("features", len(features)),
		zap.Int("ids", len(ids)), zap.Int("rings", len(rings)))

	data := AnnotatedFile{
		Annotations: make([]Annotation, 0, len(rings)),
		FilePath:    imagePath,
	}
	for i, ring := range rings {
		box, err := NewGeoBox(ring)
		if err != nil {
			log.Warn(converterLogTag+"skipping ring", zap.Int("ring", i), zap.Error(err))
			continue
		}
		data.Annotations = append(data.Annotations, Annotation{
			Coords: PixelBox(geom, box, c.XMax),
			Label:  label,
		})
	}

	return data, geom, nil
}

// rasterGeometry opens the raster just long enough to read its geometry.
func (c *Converter) rasterGeometry(imagePath string) (RasterGeometry, error) {
	r, err := c.Open(imagePath)
	if err != nil {
		return RasterGeometry{}, fmt.Errorf("%q: %v: %w", imagePath, err, ErrRasterOpen)
	}
	defer r.Close()

	geom, err := NewRasterGeometry(r)
	if err != nil {
		return RasterGeometry{}, fmt.Errorf("%q: %w", imagePath, err)
	}
	return geom, nil
}

// Run converts the annotations and merges the rows into the CSV file at csvPath. The converted
// annotations are returned for further export.
func (c *Converter) Run(geojsonPath, imagePath, csvPath, label string) (AnnotatedFile, MergeStats, error) {
	data, _, err := c.Convert(geojsonPath, imagePath, label)
	if err != nil {
		return AnnotatedFile{}, MergeStats{}, err
	}

	stats, err := MergeCSV(csvPath, data.CSVRows())
	if err != nil {
		return data, stats, err
	}
	log.Info(converterLogTag+"csv written", zap.String("csv", csvPath), zap.Int("existing", stats.Existing),
		zap.Int("added", stats.Added), zap.Int("duplicates", stats.Duplicates))

	return data, stats, nil
}

// IsInputError reports whether err stems from bad input files rather than from I/O on outputs.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidGeoJSON) || errors.Is(err, ErrDegenerateRasterExtent) ||
		errors.Is(err, ErrRasterOpen)
}
