package geobbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var exampleGeometry = RasterGeometry{Left: 0, Right: 100, Top: 50, Bottom: 0, Width: 1000, Height: 500, Scale: 10}

func TestNewGeoBox(t *testing.T) {
	box, err := NewGeoBox(Ring{{10, 5}, {10, 40}, {90, 40}, {90, 5}, {10, 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (GeoBox{XMin: 10, YMin: 5, XMax: 90, YMax: 40}); box != want {
		t.Errorf("expecting %+v, actual %+v", want, box)
	}

	// Vertices are taken by position, not by value.
	box, _ = NewGeoBox(Ring{{1, 2}, {3, 4}, {5, 6}})
	if want := (GeoBox{XMin: 1, YMin: 2, XMax: 5, YMax: 4}); box != want {
		t.Errorf("expecting %+v, actual %+v", want, box)
	}

	if _, err := NewGeoBox(Ring{{1, 2}, {3, 4}}); !errors.Is(err, ErrShortRing) {
		t.Errorf("expecting ErrShortRing, actual %v", err)
	}
}

// The mirrored xmax is what existing datasets contain; this pins it.
func TestPixelBoxMirroredXMax(t *testing.T) {
	box := GeoBox{XMin: 10, YMin: 5, XMax: 90, YMax: 40}
	got := PixelBox(exampleGeometry, box, XMaxMirrored)
	want := [4]float64{100, 100, 100, 450}
	if got != want {
		t.Errorf("expecting %v, actual %v", want, got)
	}
}

func TestPixelBoxOffsetXMax(t *testing.T) {
	box := GeoBox{XMin: 10, YMin: 5, XMax: 90, YMax: 40}
	got := PixelBox(exampleGeometry, box, XMaxOffset)
	want := [4]float64{100, 100, 900, 450}
	if got != want {
		t.Errorf("expecting %v, actual %v", want, got)
	}
}

func TestPixelBoxClamp(t *testing.T) {
	tests := []struct {
		box     GeoBox
		formula XMaxFormula
		want    [4]float64
	}{
		// Extends past the left and top edges.
		{GeoBox{XMin: -10, YMin: 20, XMax: 50, YMax: 70}, XMaxOffset, [4]float64{0, 0, 500, 300}},
		// Extends past the right and bottom edges.
		{GeoBox{XMin: 50, YMin: -20, XMax: 150, YMax: 30}, XMaxOffset, [4]float64{500, 200, 1000, 500}},
		// Mirrored xmax left of the raster lands beyond the width.
		{GeoBox{XMin: 50, YMin: 10, XMax: -50, YMax: 30}, XMaxMirrored, [4]float64{500, 200, 1000, 400}},
		// Mirrored xmax right of the raster is negative.
		{GeoBox{XMin: 50, YMin: 10, XMax: 150, YMax: 30}, XMaxMirrored, [4]float64{500, 200, 0, 400}},
	}
	for i, tt := range tests {
		got := PixelBox(exampleGeometry, tt.box, tt.formula)
		if got != tt.want {
			t.Errorf("case %d: expecting %v, actual %v", i, tt.want, got)
		}
		for j, v := range got {
			max := float64(exampleGeometry.Width)
			if j%2 == 1 {
				max = float64(exampleGeometry.Height)
			}
			if v < 0 || v > max {
				t.Errorf("case %d: coordinate %d = %v outside [0, %v]", i, j, v, max)
			}
		}
	}
}

func TestValidFeatureIDs(t *testing.T) {
	features := []AnnotationFeature{
		{ID: "in", Rings: []Ring{{{10, 5}, {10, 40}, {90, 40}}}},
		{ID: "edge", Rings: []Ring{{{100, 0}, {100, 10}, {110, 10}}}},
		{ID: "out", Rings: []Ring{{{-1, 5}, {10, 40}, {90, 40}}}},
		// Starts inside, ends outside: accepted on the first vertex alone.
		{ID: "straddle", Rings: []Ring{{{95, 45}, {95, 80}, {150, 80}}}},
		{ID: "empty"},
		{ID: "empty-ring", Rings: []Ring{{}}},
		{ID: "in", Rings: []Ring{{{20, 5}, {20, 40}, {80, 40}}}},
	}
	got := ValidFeatureIDs(features, exampleGeometry)
	want := []FeatureID{"in", "edge", "straddle", "in"}
	if len(got) != len(want) {
		t.Fatalf("expecting %v, actual %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expecting %v, actual %v", want, got)
			break
		}
	}
}

func TestFeatureRings(t *testing.T) {
	a := Ring{{1, 1}, {1, 2}, {2, 2}}
	b := Ring{{3, 3}, {3, 4}, {4, 4}}
	c := Ring{{5, 5}, {5, 6}, {6, 6}}
	features := []AnnotationFeature{
		{ID: "x", Rings: []Ring{a, c}},
		{ID: "y", Rings: []Ring{b}},
		{ID: "x", Rings: []Ring{c}},
	}

	rings := FeatureRings([]FeatureID{"y", "x"}, features)
	want := []Ring{b, a, c}
	if len(rings) != len(want) {
		t.Fatalf("expecting %d rings, actual %d", len(want), len(rings))
	}
	for i := range want {
		if rings[i][0] != want[i][0] {
			t.Errorf("ring %d: expecting %v, actual %v", i, want[i], rings[i])
		}
	}
}

func TestParseXMaxFormula(t *testing.T) {
	if f, err := ParseXMaxFormula(""); err != nil || f != XMaxMirrored {
		t.Errorf("expecting XMaxMirrored, actual %v, %v", f, err)
	}
	if f, err := ParseXMaxFormula("offset"); err != nil || f != XMaxOffset {
		t.Errorf("expecting XMaxOffset, actual %v, %v", f, err)
	}
	if _, err := ParseXMaxFormula("left"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expecting ErrInvalidConfig, actual %v", err)
	}
}

func writeTestCollection(t *testing.T, dir string) string {
	path := filepath.Join(dir, "trees.geojson")
	if err := os.WriteFile(path, []byte(testCollection), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConverterConvert(t *testing.T) {
	dir := t.TempDir()
	geojsonPath := writeTestCollection(t, dir)
	files := &memFiles{rasters: map[string]*MemRaster{"scene.tif": exampleRaster(3)}}
	c := &Converter{Open: files.open}

	data, geom, err := c.Convert(geojsonPath, "scene.tif", "tree")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geom != exampleGeometry {
		t.Errorf("expecting geometry %+v, actual %+v", exampleGeometry, geom)
	}
	if data.FilePath != "scene.tif" {
		t.Errorf("expecting file path scene.tif, actual %q", data.FilePath)
	}
	// Only feature 101 starts on the raster.
	if len(data.Annotations) != 1 {
		t.Fatalf("expecting 1 annotation, actual %d", len(data.Annotations))
	}
	a := data.Annotations[0]
	if a.Coords != [4]float64{100, 100, 100, 450} || a.Label != "tree" {
		t.Errorf("unexpected annotation %+v", a)
	}
}

func TestConverterErrors(t *testing.T) {
	dir := t.TempDir()
	geojsonPath := writeTestCollection(t, dir)
	files := &memFiles{rasters: map[string]*MemRaster{
		"flat.tif": {Width: 10, Height: 10, Transform: [6]float64{5, 0, 0, 5, 0, -1}},
	}}
	c := &Converter{Open: files.open}

	if _, _, err := c.Convert(geojsonPath, "flat.tif", "tree"); !errors.Is(err, ErrDegenerateRasterExtent) {
		t.Errorf("expecting ErrDegenerateRasterExtent, actual %v", err)
	}
	if _, _, err := c.Convert(geojsonPath, "missing.tif", "tree"); !errors.Is(err, ErrRasterOpen) {
		t.Errorf("expecting ErrRasterOpen, actual %v", err)
	}
	_, _, err := c.Convert(filepath.Join(dir, "missing.geojson"), "flat.tif", "tree")
	if !errors.Is(err, ErrInvalidGeoJSON) || !IsInputError(err) {
		t.Errorf("expecting ErrInvalidGeoJSON, actual %v", err)
	}
}

func TestConverterRunTwice(t *testing.T) {
	dir := t.TempDir()
	geojsonPath := writeTestCollection(t, dir)
	csvPath := filepath.Join(dir, "dataset.csv")
	files := &memFiles{rasters: map[string]*MemRaster{"scene.tif": exampleRaster(3)}}
	c := &Converter{Open: files.open}

	data, stats, err := c.Run(geojsonPath, "scene.tif", csvPath, "tree")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data.Annotations) != 1 || data.FilePath != "scene.tif" {
		t.Errorf("first run: unexpected annotations %+v", data)
	}
	if stats.Added != 1 || stats.Existing != 0 {
		t.Errorf("first run: unexpected stats %+v", stats)
	}

	// Same rows again plus a second label.
	if _, stats, err = c.Run(geojsonPath, "scene.tif", csvPath, "tree"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Added != 0 || stats.Existing != 1 || stats.Duplicates != 1 {
		t.Errorf("second run: unexpected stats %+v", stats)
	}
	if _, _, err = c.Run(geojsonPath, "scene.tif", csvPath, "oak"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := ReadCSV(csvPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []CSVRow{
		{"scene.tif", 100, 100, 100, 450, "tree"},
		{"scene.tif", 100, 100, 100, 450, "oak"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expecting %v, actual %v", want, rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: expecting %v, actual %v", i, want[i], rows[i])
		}
	}
}
