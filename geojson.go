package geobbox

// GeoJSON annotation input.

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/venicegeo/geojson-go/geojson"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DefaultIDProperty is the feature property holding the annotation identifier.
const DefaultIDProperty = "fcode"

// FeatureID identifies an annotation feature. Numeric identifiers are kept in their shortest decimal
// form.
type FeatureID string

// Vertex is a position in map units.
type Vertex struct {
	X, Y float64
}

// Ring is a closed sequence of vertices.
type Ring []Vertex

// AnnotationFeature is a GeoJSON polygon feature reduced to its identifier and rings.
type AnnotationFeature struct {
	ID    FeatureID
	Rings []Ring
}

// FirstVertex returns the first vertex of the first ring, if there is one.
func (f AnnotationFeature) FirstVertex() (Vertex, bool) {
	if len(f.Rings) == 0 || len(f.Rings[0]) == 0 {
		return Vertex{}, false
	}
	return f.Rings[0][0], true
}

// ReadFeatureCollection reads the GeoJSON FeatureCollection at path. The identifier of each feature
// is taken from the property idProperty (DefaultIDProperty if empty). A non-empty encoding, e.g.
// "gbk", names the character encoding of the file.
func ReadFeatureCollection(path, idProperty, encoding string) ([]AnnotationFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidGeoJSON)
	}
	defer f.Close()

	r, err := decodingReader(f, encoding)
	if err != nil {
		return nil, err
	}

	features, err := ParseFeatureCollection(r, idProperty)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return features, nil
}

// decodingReader converts r from the named encoding to UTF-8.
func decodingReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", encoding, ErrInvalidConfig)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection of polygon features from r.
func ParseFeatureCollection(r io.Reader, idProperty string) (features []AnnotationFeature, err error) {
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}

	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidGeoJSON)
	}

	// The geometry conversion in geojson-go indexes into untyped JSON.
	defer func() {
		if rec := recover(); rec != nil {
			features, err = nil, fmt.Errorf("malformed geometry: %v: %w", rec, ErrInvalidGeoJSON)
		}
	}()

	fc, err := geojson.FeatureCollectionFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidGeoJSON)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("type %q is not a FeatureCollection: %w", fc.Type, ErrInvalidGeoJSON)
	}

	features = make([]AnnotationFeature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		if gf == nil {
			return nil, fmt.Errorf("feature %d is null: %w", i, ErrInvalidGeoJSON)
		}
		id, err := featureID(gf.Properties, idProperty)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		rings, err := polygonRings(gf.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s=%s): %w", i, idProperty, id, err)
		}

		features = append(features, AnnotationFeature{ID: id, Rings: rings})
	}

	return features, nil
}

// featureID returns the identifier property as a FeatureID. Numbers are formatted in their shortest
// form, so 1 and 1.0 name the same feature.
func featureID(properties map[string]interface{}, idProperty string) (FeatureID, error) {
	v, ok := properties[idProperty]
	if !ok || v == nil {
		return "", fmt.Errorf("missing property %q: %w", idProperty, ErrInvalidGeoJSON)
	}
	switch v := v.(type) {
	case string:
		return FeatureID(v), nil
	case float64:
		return FeatureID(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		return FeatureID(strconv.FormatBool(v)), nil
	}
	return "", fmt.Errorf("property %q is not a scalar: %w", idProperty, ErrInvalidGeoJSON)
}

// polygonRings converts a polygon geometry to rings. A null geometry or empty coordinates yield no
// rings; any other geometry type is rejected.
func polygonRings(geometry interface{}) ([]Ring, error) {
	var coords [][][]float64
	switch g := geometry.(type) {
	case nil:
		return nil, nil
	case *geojson.Polygon:
		if g == nil {
			return nil, nil
		}
		coords = g.Coordinates
	default:
		return nil, fmt.Errorf("geometry %T is not a polygon: %w", geometry, ErrInvalidGeoJSON)
	}

	rings := make([]Ring, len(coords))
	for i, c := range coords {
		ring := make(Ring, len(c))
		for j, pos := range c {
			if len(pos) < 2 {
				return nil, fmt.Errorf("ring %d position %d has %d values: %w", i, j, len(pos), ErrInvalidGeoJSON)
			}
			ring[j] = Vertex{X: pos[0], Y: pos[1]}
		}
		rings[i] = ring
	}

	return rings, nil
}
