// Package history provides the HistoryEntry domain entity.
package history

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/mobiletts/internal/domain/segment"
)

// ErrEmptyText is returned when an entry has no text.
var ErrEmptyText = errors.New("history entry text is empty")

// Entry is a persisted generation result.
type Entry struct {
	ID             string            // UUID
	Text           string            // Source text
	Voice          string            // Voice name
	Speed          float64           // Speech speed multiplier
	Audio          []byte            // MP3 bytes
	TimingSegments []segment.Segment // Timing data
	Duration       float64           // Seconds
	CreatedAt      time.Time         // Generation time
}

// NewEntry creates an entry with a fresh ID.
func NewEntry(text, voice string, speed float64, audio []byte, segments []segment.Segment) Entry {
	return Entry{
		ID:             uuid.New().String(),
		Text:           text,
		Voice:          voice,
		Speed:          speed,
		Audio:          audio,
		TimingSegments: segments,
		Duration:       segment.Duration(segments),
		CreatedAt:      time.Now(),
	}
}

// Validate checks the entry before it is persisted.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return errors.New("history entry id is empty")
	}
	if strings.TrimSpace(e.Text) == "" {
		return ErrEmptyText
	}
	if e.Speed <= 0 {
		return errors.Newf("history entry speed must be positive, got %v", e.Speed)
	}
	return nil
}

// Title returns a short single-line label for listings.
func (e *Entry) Title(maxRunes int) string {
	title := strings.Join(strings.Fields(e.Text), " ")
	runes := []rune(title)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return title
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
