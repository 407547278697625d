package rimage

import (
	"io"

	"github.com/rwcarlsen/goexif/exif"
)

// CameraMetadata holds the focal length information a camera embeds in an
// image. A nil field means the tag was absent or unusable.
type CameraMetadata struct {
	// FocalLength35mm is the 35mm-equivalent focal length in millimeters.
	FocalLength35mm *float64 `json:"focal_length_35mm,omitempty"`
	// FocalLength is the actual lens focal length in millimeters.
	FocalLength *float64 `json:"focal_length_mm,omitempty"`
}

// HasFocalLength reports whether any focal length is known.
func (m CameraMetadata) HasFocalLength() bool {
	return m.FocalLength35mm != nil || m.FocalLength != nil
}

// ReadCameraMetadata extracts focal lengths from the EXIF block of an encoded
// image. Images without EXIF, such as PNGs, yield empty metadata; that is the
// common case and not an error. A partially corrupt EXIF block still yields
// whatever tags could be read.
func ReadCameraMetadata(r io.Reader) CameraMetadata {
	var meta CameraMetadata
	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return meta
	}

	if tag, err := x.Get(exif.FocalLengthIn35mmFilm); err == nil && tag.Count > 0 {
		if v, err := tag.Int(0); err == nil && v > 0 {
			f35 := float64(v)
			meta.FocalLength35mm = &f35
		}
	}
	// Rat2 rather than Rat: a zero denominator must not reach big.NewRat.
	if tag, err := x.Get(exif.FocalLength); err == nil && tag.Count > 0 {
		if num, den, err := tag.Rat2(0); err == nil && num > 0 && den > 0 {
			fl := float64(num) / float64(den)
			meta.FocalLength = &fl
		}
	}
	return meta
}
