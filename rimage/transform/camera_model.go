package transform

import (
	"math"

	"go.viam.com/depth2metric/rimage"
)

const (
	// FullFrameDiagonalMM is the diagonal of a 36x24mm full-frame sensor.
	FullFrameDiagonalMM = 43.27
	// FullFrameWidthMM is the width of a 36x24mm full-frame sensor.
	FullFrameWidthMM = 36.0
	// FallbackSensorWidthMM is assumed when only the real focal length is known.
	FallbackSensorWidthMM = 6.5
)

// EstimateFromMetadata derives intrinsics from the focal lengths recorded by
// the camera. It returns false when the metadata has no usable focal length.
// The principal point is always the image center and Fx == Fy.
func EstimateFromMetadata(meta rimage.CameraMetadata, width, height int) (*PinholeCameraIntrinsics, bool) {
	if width <= 0 || height <= 0 {
		return nil, false
	}
	w, h := float64(width), float64(height)

	var fx float64
	switch f35, fl := meta.FocalLength35mm, meta.FocalLength; {
	case f35 != nil && fl != nil:
		// sensor diagonal from the crop factor, then its width from the aspect ratio
		cropFactor := *f35 / *fl
		aspect := w / h
		diagonalMM := FullFrameDiagonalMM / cropFactor
		aspectDiagonal := math.Sqrt(1 + aspect*aspect)
		sensorWidthMM := diagonalMM * aspect / aspectDiagonal
		fx = *fl * w / sensorWidthMM
	case f35 != nil:
		fx = (*f35 / FullFrameWidthMM) * w
	case fl != nil:
		fx = (*fl / FallbackSensorWidthMM) * w
	default:
		return nil, false
	}

	intrinsics := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     fx,
		Fy:     fx,
		Ppx:    w / 2,
		Ppy:    h / 2,
	}
	if intrinsics.CheckValid() != nil {
		return nil, false
	}
	return intrinsics, true
}

// FallbackIntrinsics is the plain pinhole assumption used whenever metadata is
// missing: a focal length equal to the image width and a centered principal point.
func FallbackIntrinsics(width, height int) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     float64(width),
		Fy:     float64(width),
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

// EstimateIntrinsics returns metadata-derived intrinsics when possible and the
// fallback otherwise. The boolean reports whether metadata was used.
func EstimateIntrinsics(meta *rimage.CameraMetadata, width, height int) (*PinholeCameraIntrinsics, bool) {
	if meta != nil {
		if intrinsics, ok := EstimateFromMetadata(*meta, width, height); ok {
			return intrinsics, true
		}
	}
	return FallbackIntrinsics(width, height), false
}
