package geobbox

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func bandRaster(values ...float64) *MemRaster {
	r := &MemRaster{Width: 1, Height: 1}
	for _, v := range values {
		r.Bands = append(r.Bands, []float64{v})
	}
	return r
}

func TestCheckBands(t *testing.T) {
	for k := 0; k < 5; k++ {
		r := exampleRaster(k)
		for n := 0; n < 5; n++ {
			if got := CheckBands(r, n); got != (k == n) {
				t.Errorf("CheckBands(%d bands, %d): expecting %v, actual %v", k, n, k == n, got)
			}
		}
	}
}

func TestFixBands(t *testing.T) {
	tests := []struct {
		name    string
		r       *MemRaster
		n       int
		pad     PadMode
		outcome BandOutcome
		want    []uint8
	}{
		{"truncate", bandRaster(1, 2, 3, 4), 3, PadZero, BandsTruncated, []uint8{1, 2, 3}},
		{"unchanged", bandRaster(1, 2, 3), 3, PadZero, BandsUnchanged, []uint8{1, 2, 3}},
		{"pad zero", bandRaster(7), 3, PadZero, BandsPadded, []uint8{7, 0, 0}},
		{"pad replicate", bandRaster(7, 9), 4, PadReplicate, BandsPadded, []uint8{7, 9, 9, 9}},
		{"pad replicate no source", bandRaster(), 2, PadReplicate, BandsPadded, []uint8{0, 0}},
		{"cast", bandRaster(300, 255.9, -1), 3, PadZero, BandsUnchanged, []uint8{44, 255, 255}},
	}
	for _, tt := range tests {
		stack, outcome, err := FixBands(tt.r, tt.n, tt.pad)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if outcome != tt.outcome {
			t.Errorf("%s: expecting outcome %v, actual %v", tt.name, tt.outcome, outcome)
		}
		if len(stack.Bands) != tt.n {
			t.Errorf("%s: expecting %d bands, actual %d", tt.name, tt.n, len(stack.Bands))
			continue
		}
		for i, b := range stack.Bands {
			if b[0] != tt.want[i] {
				t.Errorf("%s: band %d: expecting %d, actual %d", tt.name, i, tt.want[i], b[0])
			}
		}
	}
}

func TestFixBandsInvalidCount(t *testing.T) {
	if _, _, err := FixBands(bandRaster(1), 0, PadZero); !errors.Is(err, ErrInvalidBandCount) {
		t.Errorf("expecting ErrInvalidBandCount, actual %v", err)
	}
}

// memFiles is an in-memory raster store for BandNormalizer.
type memFiles struct {
	rasters map[string]*MemRaster
	saves   int
	// dropBand makes save lose the last band, to exercise verification.
	dropBand bool
}

func (m *memFiles) open(path string) (Raster, error) {
	r, ok := m.rasters[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return r, nil
}

func (m *memFiles) save(path string, stack *BandStack) error {
	m.saves++
	r := &MemRaster{Width: stack.Width, Height: stack.Height}
	bands := stack.Bands
	if m.dropBand {
		bands = bands[:len(bands)-1]
	}
	for _, b := range bands {
		f := make([]float64, len(b))
		for i, v := range b {
			f[i] = float64(v)
		}
		r.Bands = append(r.Bands, f)
	}
	m.rasters[path] = r
	return nil
}

func newMemFiles() *memFiles {
	return &memFiles{rasters: map[string]*MemRaster{
		"rgb.tif":  bandRaster(10, 20, 30),
		"rgbn.tif": bandRaster(10, 20, 30, 40),
		"gray.tif": bandRaster(10),
	}}
}

func TestBandNormalizerNormalize(t *testing.T) {
	tests := []struct {
		image   string
		outcome BandOutcome
		saves   int
	}{
		{"rgb.tif", BandsUnchanged, 0},
		{"rgbn.tif", BandsTruncated, 1},
		{"gray.tif", BandsPadded, 1},
	}
	for _, tt := range tests {
		files := newMemFiles()
		b := &BandNormalizer{Open: files.open, Save: files.save, Pad: PadReplicate}

		outcome, err := b.Normalize(tt.image, "out.png", 3)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.image, err)
			continue
		}
		if outcome != tt.outcome {
			t.Errorf("%s: expecting %v, actual %v", tt.image, tt.outcome, outcome)
		}
		if files.saves != tt.saves {
			t.Errorf("%s: expecting %d saves, actual %d", tt.image, tt.saves, files.saves)
		}
		if tt.saves > 0 {
			if out := files.rasters["out.png"]; out.BandCount() != 3 {
				t.Errorf("%s: expecting 3 bands in output, actual %d", tt.image, out.BandCount())
			}
		}
	}
}

func TestBandNormalizerVerification(t *testing.T) {
	files := newMemFiles()
	files.dropBand = true
	b := &BandNormalizer{Open: files.open, Save: files.save}

	if _, err := b.Normalize("rgbn.tif", "out.png", 3); !errors.Is(err, ErrBandVerification) {
		t.Errorf("expecting ErrBandVerification, actual %v", err)
	}
	if b.Ensure("rgbn.tif", "out.png", 3) {
		t.Error("Ensure: expecting false after failed verification")
	}
}

func TestBandNormalizerSaveFailure(t *testing.T) {
	files := newMemFiles()
	save := func(path string, stack *BandStack) error {
		return fmt.Errorf("driver could not create %q", path)
	}
	b := &BandNormalizer{Open: files.open, Save: save}

	_, err := b.Normalize("rgbn.tif", "out.png", 3)
	if !errors.Is(err, ErrRasterWrite) {
		t.Errorf("expecting ErrRasterWrite, actual %v", err)
	}
	if IsInputError(err) {
		t.Errorf("expecting a write failure not to count as an input error")
	}
}

func TestBandNormalizerEnsure(t *testing.T) {
	files := newMemFiles()
	b := &BandNormalizer{Open: files.open, Save: files.save}

	if !b.Ensure("rgbn.tif", "out.png", 3) {
		t.Error("expecting true for a fixable image")
	}
	if b.Ensure("missing.tif", "out.png", 3) {
		t.Error("expecting false for a missing image")
	}
	if _, err := b.Normalize("missing.tif", "out.png", 3); !errors.Is(err, ErrRasterOpen) {
		t.Errorf("expecting ErrRasterOpen, actual %v", err)
	}
	if ok, err := b.Check("rgb.tif", 3); err != nil || !ok {
		t.Errorf("Check: expecting true, nil, actual %v, %v", ok, err)
	}
}

func TestParsePadMode(t *testing.T) {
	if m, err := ParsePadMode("replicate"); err != nil || m != PadReplicate {
		t.Errorf("expecting PadReplicate, actual %v, %v", m, err)
	}
	if m, err := ParsePadMode(""); err != nil || m != PadZero {
		t.Errorf("expecting PadZero, actual %v, %v", m, err)
	}
	if _, err := ParsePadMode("mirror"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expecting ErrInvalidConfig, actual %v", err)
	}
}
