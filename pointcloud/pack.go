package pointcloud

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// RecordSize is the number of bytes of one packed point: three little-endian
// float32 coordinates (x, y, z) followed by three uint8 color channels (r, g, b).
// Records are laid out back to back with no padding.
const RecordSize = 4 + 4 + 4 + 1 + 1 + 1

// ErrBadRecordBuffer is returned when unpacking a buffer whose length is not a
// multiple of RecordSize.
var ErrBadRecordBuffer = errors.New("packed point buffer length is not a multiple of the record size")

// Pack serializes cp into consecutive RecordSize-byte records, in the order of cp.
func Pack(cp ColoredPoints) ([]byte, error) {
	if cp.Len() != len(cp.Colors) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d points, %d colors", cp.Len(), len(cp.Colors))
	}
	buf := make([]byte, cp.Len()*RecordSize)
	for i := 0; i < cp.Len(); i++ {
		rec := buf[i*RecordSize : (i+1)*RecordSize]
		binary.LittleEndian.PutUint32(rec, math.Float32bits(float32(cp.X[i])))
		binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(float32(cp.Y[i])))
		binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(float32(cp.Z[i])))
		rec[12], rec[13], rec[14] = cp.RGB255(i)
	}
	return buf, nil
}

// Unpack parses a buffer produced by Pack.
func Unpack(buf []byte) (ColoredPoints, error) {
	if len(buf)%RecordSize != 0 {
		return ColoredPoints{}, errors.Wrapf(ErrBadRecordBuffer, "got %d bytes", len(buf))
	}
	n := len(buf) / RecordSize
	cp := ColoredPoints{Points: NewPoints(n), Colors: make([]color.NRGBA, n)}
	for i := 0; i < n; i++ {
		rec := buf[i*RecordSize : (i+1)*RecordSize]
		cp.X[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rec)))
		cp.Y[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[4:])))
		cp.Z[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[8:])))
		cp.Colors[i] = color.NRGBA{R: rec[12], G: rec[13], B: rec[14], A: 255}
	}
	return cp, nil
}
