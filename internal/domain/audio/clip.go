package audio

import "github.com/osa030/mobiletts/internal/domain/segment"

// Clip is synthesized speech: MP3 bytes with the timing of each spoken chunk.
type Clip struct {
	Data     []byte
	Segments []segment.Segment
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	return segment.Duration(c.Segments)
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}
