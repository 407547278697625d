package rimage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/depth2metric/utils"
)

// MaxImageBytes is the largest encoded image accepted for reconstruction.
const MaxImageBytes = 8 << 20

const (
	// MimeTypePNG is the mime type of PNG images.
	MimeTypePNG = "image/png"
	// MimeTypeJPEG is the mime type of JPEG images.
	MimeTypeJPEG = "image/jpeg"
)

// ErrUnsupportedImage is returned for encoded images that are not PNG or JPEG
// or that exceed MaxImageBytes.
var ErrUnsupportedImage = errors.New("unsupported image")

// CheckEncodedImage verifies that data is a PNG or JPEG no larger than
// MaxImageBytes and returns its mime type.
func CheckEncodedImage(data []byte) (string, error) {
	if len(data) > MaxImageBytes {
		return "", errors.Wrapf(ErrUnsupportedImage, "image is %d bytes, must be smaller than %d", len(data), MaxImageBytes)
	}
	mimeType := http.DetectContentType(data)
	switch mimeType {
	case MimeTypePNG, MimeTypeJPEG:
		return mimeType, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedImage, "only PNG or JPEG images are allowed, got %q", mimeType)
	}
}

// DecodeImage decodes an encoded PNG or JPEG, applying any EXIF orientation so
// the returned raster matches what a depth network would see.
func DecodeImage(data []byte) (image.Image, error) {
	if _, err := CheckEncodedImage(data); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "error decoding image")
	}
	return img, nil
}

// ImageColors returns the 8-bit RGB color of every pixel of img in raster order
// (index = y*width + x). Alpha is forced to opaque.
func ImageColors(ctx context.Context, img image.Image) ([]color.NRGBA, error) {
	b := img.Bounds()
	width := b.Dx()
	colors := make([]color.NRGBA, width*b.Dy())
	if width == 0 {
		return colors, nil
	}
	err := utils.GroupWorkParallel(ctx, b.Dy(), func(_, from, to int) {
		for y := from; y < to; y++ {
			row := colors[y*width : (y+1)*width]
			for x := range row {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				c.A = 255
				row[x] = c
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return colors, nil
}
