package transform

import (
	"bytes"
	"encoding/binary"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depth2metric/rimage"
)

const (
	tagExifIFDPointer        = 0x8769
	tagFocalLength           = 0x920A
	tagFocalLengthIn35mmFilm = 0xA405

	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

type exifEntry struct {
	id    uint16
	typ   uint16
	count uint32
	value []byte
}

func shortEntry(id, v uint16) exifEntry {
	return exifEntry{id: id, typ: typeShort, count: 1, value: binary.LittleEndian.AppendUint16(nil, v)}
}

func rationalEntry(id uint16, num, den uint32) exifEntry {
	v := binary.LittleEndian.AppendUint32(nil, num)
	return exifEntry{id: id, typ: typeRational, count: 1, value: binary.LittleEndian.AppendUint32(v, den)}
}

// exifJPEG returns a JPEG stream holding only an APP1 segment with a
// little-endian TIFF block. ifd0 entries go in the first IFD; sub entries,
// when present, go in an Exif sub-IFD linked from IFD0.
func exifJPEG(ifd0, sub []exifEntry) []byte {
	ifdSize := func(n int) int { return 2 + 12*n + 4 }
	le := binary.LittleEndian

	const ifd0Offset = 8
	entries0 := append([]exifEntry(nil), ifd0...)
	subOffset := ifd0Offset + ifdSize(len(entries0))
	if len(sub) > 0 {
		subOffset += 12
		entries0 = append(entries0, exifEntry{id: tagExifIFDPointer, typ: typeLong, count: 1, value: le.AppendUint32(nil, uint32(subOffset))})
	}
	dataOffset := subOffset
	if len(sub) > 0 {
		dataOffset += ifdSize(len(sub))
	}

	tiff := append([]byte("II"), 42, 0)
	tiff = le.AppendUint32(tiff, ifd0Offset)
	var data []byte
	writeIFD := func(entries []exifEntry) {
		tiff = le.AppendUint16(tiff, uint16(len(entries)))
		for _, e := range entries {
			tiff = le.AppendUint16(tiff, e.id)
			tiff = le.AppendUint16(tiff, e.typ)
			tiff = le.AppendUint32(tiff, e.count)
			if len(e.value) > 4 {
				tiff = le.AppendUint32(tiff, uint32(dataOffset+len(data)))
				data = append(data, e.value...)
				continue
			}
			var inline [4]byte
			copy(inline[:], e.value)
			tiff = append(tiff, inline[:]...)
		}
		tiff = le.AppendUint32(tiff, 0)
	}
	writeIFD(entries0)
	if len(sub) > 0 {
		writeIFD(sub)
	}
	tiff = append(tiff, data...)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	return append(out, 0xFF, 0xD9)
}

func readMetadata(ifd0, sub []exifEntry) rimage.CameraMetadata {
	return rimage.ReadCameraMetadata(bytes.NewReader(exifJPEG(ifd0, sub)))
}

func TestReadCameraMetadataFromExif(t *testing.T) {
	t.Run("both focal lengths", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{
			rationalEntry(tagFocalLength, 425, 100),
			shortEntry(tagFocalLengthIn35mmFilm, 26),
		})
		test.That(t, meta.FocalLength, test.ShouldNotBeNil)
		test.That(t, *meta.FocalLength, test.ShouldAlmostEqual, 4.25)
		test.That(t, meta.FocalLength35mm, test.ShouldNotBeNil)
		test.That(t, *meta.FocalLength35mm, test.ShouldEqual, 26)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 4032, 3024)
		test.That(t, fromMeta, test.ShouldBeTrue)
		sensorWidth := (43.27 / (26 / 4.25)) * 0.8
		test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 4.25*4032/sensorWidth, 1e-6)
		test.That(t, intrinsics.Ppx, test.ShouldEqual, 2016)
	})

	t.Run("35mm only", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{shortEntry(tagFocalLengthIn35mmFilm, 36)})
		test.That(t, meta.FocalLength, test.ShouldBeNil)
		test.That(t, *meta.FocalLength35mm, test.ShouldEqual, 36)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 1000, 500)
		test.That(t, fromMeta, test.ShouldBeTrue)
		test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 1000)
	})

	t.Run("real focal length only", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{rationalEntry(tagFocalLength, 42, 10)})
		test.That(t, meta.FocalLength35mm, test.ShouldBeNil)
		test.That(t, *meta.FocalLength, test.ShouldAlmostEqual, 4.2)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 650, 400)
		test.That(t, fromMeta, test.ShouldBeTrue)
		test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 420)
	})

	t.Run("zero over zero focal length", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{rationalEntry(tagFocalLength, 0, 0)})
		test.That(t, meta.HasFocalLength(), test.ShouldBeFalse)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 640, 480)
		test.That(t, fromMeta, test.ShouldBeFalse)
		test.That(t, intrinsics.Fx, test.ShouldEqual, 640)

		meta = readMetadata(nil, []exifEntry{
			rationalEntry(tagFocalLength, 0, 0),
			shortEntry(tagFocalLengthIn35mmFilm, 36),
		})
		test.That(t, meta.FocalLength, test.ShouldBeNil)
		test.That(t, *meta.FocalLength35mm, test.ShouldEqual, 36)
	})

	t.Run("zero denominator", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{rationalEntry(tagFocalLength, 50, 0)})
		test.That(t, meta.FocalLength, test.ShouldBeNil)
	})

	t.Run("zero count tag", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{{id: tagFocalLength, typ: typeRational}})
		test.That(t, meta.HasFocalLength(), test.ShouldBeFalse)

		meta = readMetadata([]exifEntry{{id: tagFocalLengthIn35mmFilm, typ: typeShort}}, nil)
		test.That(t, meta.HasFocalLength(), test.ShouldBeFalse)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 640, 480)
		test.That(t, fromMeta, test.ShouldBeFalse)
		test.That(t, intrinsics.Fx, test.ShouldEqual, 640)
	})

	t.Run("wrong tag type", func(t *testing.T) {
		meta := readMetadata(nil, []exifEntry{shortEntry(tagFocalLength, 5)})
		test.That(t, meta.FocalLength, test.ShouldBeNil)
	})

	t.Run("tags in IFD0 survive a broken sub-IFD", func(t *testing.T) {
		meta := readMetadata(
			[]exifEntry{rationalEntry(tagFocalLength, 65, 10)},
			[]exifEntry{{id: tagFocalLengthIn35mmFilm, typ: typeShort}},
		)
		test.That(t, meta.FocalLength35mm, test.ShouldBeNil)
		test.That(t, *meta.FocalLength, test.ShouldAlmostEqual, 6.5)

		intrinsics, fromMeta := EstimateIntrinsics(&meta, 800, 600)
		test.That(t, fromMeta, test.ShouldBeTrue)
		test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 800)
	})
}
