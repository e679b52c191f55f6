package geobbox

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

// imageEncoding maps an encoding name to the imaging format and the TFRecord image/format value.
func imageEncoding(encoding string) (imaging.Format, string, error) {
	switch strings.ToLower(encoding) {
	case "", "png":
		return imaging.PNG, "png", nil
	case "jpg", "jpeg":
		return imaging.JPEG, "jpeg", nil
	}
	return 0, "", fmt.Errorf("unsupported image encoding %q: %w", encoding, ErrInvalidConfig)
}

// stackImage wraps the band stack in an image.Image. One band is gray, two are gray and alpha,
// three are RGB and four RGBA.
func stackImage(stack *BandStack) (image.Image, error) {
	n := len(stack.Bands)
	r := image.Rect(0, 0, stack.Width, stack.Height)

	if n == 1 {
		img := image.NewGray(r)
		for y := 0; y < stack.Height; y++ {
			copy(img.Pix[y*img.Stride:], stack.Bands[0][y*stack.Width:(y+1)*stack.Width])
		}
		return img, nil
	}
	if n < 1 || n > 4 {
		return nil, fmt.Errorf("%d bands: %w", n, ErrUnsupportedBandCount)
	}

	img := image.NewNRGBA(r)
	for y := 0; y < stack.Height; y++ {
		for x := 0; x < stack.Width; x++ {
			i := y*stack.Width + x
			var c color.NRGBA
			switch n {
			case 2:
				c = color.NRGBA{stack.Bands[0][i], stack.Bands[0][i], stack.Bands[0][i], stack.Bands[1][i]}
			case 3:
				c = color.NRGBA{stack.Bands[0][i], stack.Bands[1][i], stack.Bands[2][i], 0xff}
			case 4:
				c = color.NRGBA{stack.Bands[0][i], stack.Bands[1][i], stack.Bands[2][i], stack.Bands[3][i]}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

// encodeStack encodes the band stack to w in the given imaging format.
func encodeStack(w io.Writer, stack *BandStack, format imaging.Format, jpegQuality int) error {
	img, err := stackImage(stack)
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, format, imaging.JPEGQuality(jpegQuality))
}
