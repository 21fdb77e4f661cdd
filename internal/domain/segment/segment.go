// Package segment provides the timing segment domain entity.
package segment

// Segment is a span of synthesized text with its position in the audio.
// Start and End are seconds from the beginning of the generated audio.
type Segment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	ChunkIndex int     `json:"chunk_index"`
}

// Contains reports whether t falls inside [Start, End).
func (s Segment) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

// Duration returns the end of the last segment, or 0 for no segments.
// Segments are ordered by the generator, so the last one ends the audio.
func Duration(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}

// IndexAt returns the index of the segment playing at time t, or -1.
func IndexAt(segments []Segment, t float64) int {
	lo, hi := 0, len(segments)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case t < segments[mid].Start:
			hi = mid - 1
		case !segments[mid].Contains(t):
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

// Clone returns a copy of the slice.
func Clone(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	dup := make([]Segment, len(segments))
	copy(dup, segments)
	return dup
}
