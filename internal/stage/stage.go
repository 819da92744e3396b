// Package stage maps raw conversion progress onto coarse stage labels and
// remaps sub-progress reported by a primitive into the band reserved for it.
package stage

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is a coarse phase label shown next to an item's progress.
type Stage string

const (
	Initializing Stage = "initializing"
	Normalizing  Stage = "normalizing"
	Compressing  Stage = "compressing"
	Encoding     Stage = "encoding"
	Finalizing   Stage = "finalizing"
)

// Progress checkpoints emitted by the conversion pipeline.
const (
	ProgressStart          = 0
	ProgressNormalizeStart = 10
	ProgressNormalizeDone  = 20
	ProgressCompressDone   = 80
	ProgressEncodeStart    = 85
	ProgressEncodeDone     = 90
	ProgressComplete       = 100
)

var titler = cases.Title(language.English)

// ForProgress returns the stage for a percentage in [0,100]. Values outside
// the range are clamped first.
func ForProgress(percent int) Stage {
	p := Clamp(percent)
	switch {
	case p == 0:
		return Initializing
	case p <= ProgressNormalizeDone:
		return Normalizing
	case p <= ProgressCompressDone:
		return Compressing
	case p < 100:
		return Encoding
	default:
		return Finalizing
	}
}

// Label returns the display form of s ("Compressing").
func Label(s Stage) string {
	if s == "" {
		return ""
	}
	return titler.String(string(s))
}

// Remap maps sub-progress in [0,100] linearly into [lo,hi], rounding to the
// nearest integer.
func Remap(sub float64, lo, hi int) int {
	switch {
	case sub <= 0:
		return lo
	case sub >= 100:
		return hi
	}
	v := float64(lo) + sub*float64(hi-lo)/100
	return int(v + 0.5)
}

// Clamp bounds percent to [0,100].
func Clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
