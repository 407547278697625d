package utils

// PixelGrid returns the column (u) and row (v) coordinate of every pixel of a
// width x height raster, in raster order (index = v*width + u).
func PixelGrid(width, height int) (us, vs []float64) {
	if width <= 0 || height <= 0 {
		return nil, nil
	}
	us = make([]float64, width*height)
	vs = make([]float64, width*height)
	row := make([]float64, width)
	for u := range row {
		row[u] = float64(u)
	}
	for v := 0; v < height; v++ {
		start := v * width
		copy(us[start:start+width], row)
		fv := float64(v)
		line := vs[start : start+width]
		for i := range line {
			line[i] = fv
		}
	}
	return us, vs
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
