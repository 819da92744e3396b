package logging

// ProgressSampler keeps per-item progress logging to one line per bucket,
// plus one line whenever the stage label changes.
type ProgressSampler struct {
	bucket     int
	lastStage  string
	lastBucket int
}

// NewProgressSampler returns a sampler with the given bucket width in
// percent. Widths outside 1..100 fall back to 10.
func NewProgressSampler(bucket int) *ProgressSampler {
	if bucket < 1 || bucket > 100 {
		bucket = 10
	}
	return &ProgressSampler{bucket: bucket, lastBucket: -1}
}

// ShouldLog reports whether percent at stage deserves a log line. Percent is
// clamped to 0..100. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(percent int, stage string) bool {
	if s == nil {
		return true
	}
	percent = min(max(percent, 0), 100)
	emit := false
	if stage != s.lastStage {
		s.lastStage = stage
		emit = true
	}
	if b := percent / s.bucket; b > s.lastBucket {
		s.lastBucket = b
		emit = true
	}
	return emit
}
