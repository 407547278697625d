package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

const (
	// maxDepthMapSide bounds the dimensions accepted from a depth file header.
	maxDepthMapSide = 100000
	// maxDepthMapPixels bounds width*height accepted from a depth file header.
	maxDepthMapPixels = 100_000_000
)

// NewDepthMapFromFile reads a depth map from disk. Files ending in ".png" must
// be 8 or 16 bit grayscale; each pixel value is divided by pngDivisor. Any
// other file is read in the raw format written by WriteDepthMap, optionally
// gzip compressed when the name ends in ".gz".
func NewDepthMapFromFile(fn string, pngDivisor float64) (dm *DepthMap, err error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening depth file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	if strings.EqualFold(filepath.Ext(fn), ".png") {
		img, err := imaging.Decode(f)
		if err != nil {
			return nil, errors.Wrap(err, "error decoding depth png")
		}
		return NewDepthMapFromGray(img, pngDivisor)
	}

	var r io.Reader = f
	if filepath.Ext(fn) == ".gz" {
		var gz *gzip.Reader
		gz, err = gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer func() {
			err = multierr.Combine(err, gz.Close())
		}()
		r = gz
	}
	return ReadDepthMap(bufio.NewReader(r))
}

// NewDepthMapFromGray converts a grayscale image to a depth map, dividing every
// pixel value by divisor.
func NewDepthMapFromGray(img image.Image, divisor float64) (*DepthMap, error) {
	if !(divisor > 0) {
		return nil, errors.Errorf("depth divisor must be positive, got %v", divisor)
	}
	b := img.Bounds()
	dm := NewEmptyDepthMap(b.Dx(), b.Dy())
	switch gray := img.(type) {
	case *image.Gray16:
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, float64(gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y)/divisor)
			}
		}
	case *image.Gray:
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)/divisor)
			}
		}
	default:
		return nil, errors.Errorf("depth image must be grayscale, got %T", img)
	}
	return dm, nil
}

// ReadDepthMap reads the raw depth format: little-endian int64 width, int64
// height, then width*height little-endian float32 values in raster order.
func ReadDepthMap(r io.Reader) (*DepthMap, error) {
	var header [2]int64
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "error reading depth map header")
	}
	width, height := header[0], header[1]
	if width <= 0 || width >= maxDepthMapSide || height <= 0 || height >= maxDepthMapSide {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	if width*height > maxDepthMapPixels {
		return nil, errors.Errorf("depth map %vx%v has more than %d pixels", width, height, maxDepthMapPixels)
	}

	// rows are read one at a time so a truncated file fails before the whole
	// grid is allocated
	row := make([]float32, width)
	data := make([]float64, 0, width)
	for y := int64(0); y < height; y++ {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, errors.Wrapf(err, "error reading depth values at row %d", y)
		}
		for _, d := range row {
			data = append(data, float64(d))
		}
	}
	return NewDepthMapFromData(int(width), int(height), data)
}

// WriteDepthMap writes dm in the raw format understood by ReadDepthMap.
func WriteDepthMap(dm *DepthMap, out io.Writer) error {
	header := [2]int64{int64(dm.width), int64(dm.height)}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return err
	}
	buf := make([]byte, 4*len(dm.data))
	for i, d := range dm.data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(d)))
	}
	_, err := out.Write(buf)
	return err
}
