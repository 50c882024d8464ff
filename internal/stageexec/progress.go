package stageexec

const progressBucket = 10

// progressSampler decides which progress-bar redraws reach the log. Each
// bar label is tracked on its own, so training output that interleaves an
// epoch bar with a step bar logs both at every 10% boundary.
type progressSampler struct {
	buckets map[string]int
}

func newProgressSampler() *progressSampler {
	return &progressSampler{buckets: make(map[string]int)}
}

// shouldLog reports whether a redraw of bar label at percent is logged: the
// first redraw of a bar, and any redraw landing in a different bucket. A bar
// that restarts below its last bucket counts as a change.
func (s *progressSampler) shouldLog(label string, percent float64) bool {
	bucket := int(percent) / progressBucket
	last, seen := s.buckets[label]
	if seen && bucket == last {
		return false
	}
	s.buckets[label] = bucket
	return true
}
