package geobbox

// Band count normalisation.

import (
	"fmt"
	"strings"

	"github.com/sensorable/geobbox/log"

	"go.uber.org/zap"
)

// BandOutcome tells what FixBands did to reach the required band count.
type BandOutcome int

// The band fix outcomes.
const (
	BandsUnchanged BandOutcome = iota // Already the required count; samples only cast to 8 bit.
	BandsTruncated                    // Trailing bands dropped.
	BandsPadded                       // Bands appended as per PadMode.
)

func (o BandOutcome) String() string {
	switch o {
	case BandsUnchanged:
		return "unchanged"
	case BandsTruncated:
		return "truncated"
	case BandsPadded:
		return "padded"
	}
	return fmt.Sprintf("BandOutcome(%d)", int(o))
}

// PadMode selects how missing bands are filled in.
type PadMode int

// The padding modes.
const (
	PadZero      PadMode = iota // Fill with zeros.
	PadReplicate                // Repeat the last source band; zeros if there is none.
)

// ParsePadMode parses "zero" or "replicate". The empty string is PadZero.
func ParsePadMode(s string) (PadMode, error) {
	switch strings.ToLower(s) {
	case "", "zero":
		return PadZero, nil
	case "replicate":
		return PadReplicate, nil
	}
	return PadZero, fmt.Errorf("unknown pad mode %q: %w", s, ErrInvalidConfig)
}

// BandStack is an 8 bit multi-band image, one row-major slice per band.
type BandStack struct {
	Width, Height int
	Bands         [][]uint8
}

// SaveFunc writes stack as an image file at path.
type SaveFunc func(path string, stack *BandStack) error

// CheckBands reports whether r has exactly n bands.
func CheckBands(r Raster, n int) bool {
	return r.BandCount() == n
}

// toUint8 casts like numpy's astype("uint8"): truncate toward zero, then wrap modulo 256.
func toUint8(v float64) uint8 {
	return uint8(int64(v))
}

// FixBands reads all bands of r and returns an 8 bit stack with exactly n bands.
func FixBands(r Raster, n int, pad PadMode) (*BandStack, BandOutcome, error) {
	if n <= 0 {
		return nil, BandsUnchanged, fmt.Errorf("required %d bands: %w", n, ErrInvalidBandCount)
	}

	k := r.BandCount()
	w, h := r.Size()
	stack := &BandStack{Width: w, Height: h, Bands: make([][]uint8, 0, n)}

	for i := 0; i < k && i < n; i++ {
		samples, err := r.ReadBand(i)
		if err != nil {
			return nil, BandsUnchanged, fmt.Errorf("band %d: %v: %w", i, err, ErrRasterRead)
		}
		band := make([]uint8, len(samples))
		for j, v := range samples {
			band[j] = toUint8(v)
		}
		stack.Bands = append(stack.Bands, band)
	}

	outcome := BandsUnchanged
	switch {
	case k > n:
		outcome = BandsTruncated
	case k < n:
		outcome = BandsPadded
		for len(stack.Bands) < n {
			band := make([]uint8, w*h)
			if pad == PadReplicate && len(stack.Bands) > 0 {
				copy(band, stack.Bands[len(stack.Bands)-1])
			}
			stack.Bands = append(stack.Bands, band)
		}
	}

	return stack, outcome, nil
}

// BandNormalizer makes images conform to a required band count.
type BandNormalizer struct {
	Open OpenFunc
	Save SaveFunc
	Pad  PadMode
}

const bandsLogTag = "BandNormalizer:"

// Check opens the image at path and reports whether it has n bands.
func (b *BandNormalizer) Check(path string, n int) (bool, error) {
	r, err := b.Open(path)
	if err != nil {
		return false, fmt.Errorf("%q: %v: %w", path, err, ErrRasterOpen)
	}
	defer r.Close()

	return CheckBands(r, n), nil
}

// Normalize checks the image at imagePath and, if it does not have n bands, writes a fixed copy
// to outPath and verifies the copy.
func (b *BandNormalizer) Normalize(imagePath, outPath string, n int) (BandOutcome, error) {
	if n <= 0 {
		return BandsUnchanged, fmt.Errorf("required %d bands: %w", n, ErrInvalidBandCount)
	}

	r, err := b.Open(imagePath)
	if err != nil {
		return BandsUnchanged, fmt.Errorf("%q: %v: %w", imagePath, err, ErrRasterOpen)
	}
	defer r.Close()

	if CheckBands(r, n) {
		log.Debug(bandsLogTag+"band count ok", zap.String("image", imagePath), zap.Int("bands", n))
		return BandsUnchanged, nil
	}

	stack, outcome, err := FixBands(r, n, b.Pad)
	if err != nil {
		return outcome, err
	}
	log.Info(bandsLogTag+"fixing band count", zap.String("image", imagePath),
		zap.Int("from", r.BandCount()), zap.Int("to", n), zap.Stringer("outcome", outcome))

	if err := b.Save(outPath, stack); err != nil {
		return outcome, fmt.Errorf("%q: %v: %w", outPath, err, ErrRasterWrite)
	}

	ok, err := b.Check(outPath, n)
	if err != nil {
		return outcome, err
	}
	if !ok {
		return outcome, fmt.Errorf("%q does not have %d bands: %w", outPath, n, ErrBandVerification)
	}

	return outcome, nil
}

// Ensure is Normalize reduced to a success flag. Failures are logged.
func (b *BandNormalizer) Ensure(imagePath, outPath string, n int) bool {
	if _, err := b.Normalize(imagePath, outPath, n); err != nil {
		log.Error(bandsLogTag+"normalize failed", zap.String("image", imagePath), zap.Error(err))
		return false
	}
	return true
}
