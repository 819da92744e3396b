package pipeline

import "math"

// OptimalDimensions scales width×height down to fit maxDimension on the
// longer side, preserving aspect ratio. Images already within bounds keep
// their size.
func OptimalDimensions(width, height, maxDimension int) (int, int) {
	longest := max(width, height)
	if longest <= 0 || maxDimension <= 0 {
		return width, height
	}
	scale := math.Min(1, float64(maxDimension)/float64(longest))
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// QuantizeChannels snaps each RGB channel of RGBA pixels to `levels` steps:
// v → round(v/step)*step with step = floor(256/levels), clamped to 255.
// Alpha is left unchanged.
func QuantizeChannels(pix []uint8, levels int) {
	if levels < 2 || levels > 256 {
		return
	}
	step := 256 / levels
	if step <= 1 {
		return
	}
	var table [256]uint8
	for v := range table {
		q := int(math.Round(float64(v)/float64(step))) * step
		table[v] = uint8(min(q, 255))
	}
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = table[pix[i]]
		pix[i+1] = table[pix[i+1]]
		pix[i+2] = table[pix[i+2]]
	}
}
