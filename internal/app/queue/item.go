// Package queue provides the playlist of generated audio with a stable current pointer.
package queue

import (
	"time"

	"github.com/osa030/mobiletts/internal/domain/history"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// Item represents a generated audio clip in the queue.
type Item struct {
	QueueID        string            // Assigned by Store.Add, unique for the queue lifetime
	Text           string            // Source text
	Audio          []byte            // MP3 bytes; a playable handle is derived on play
	TimingSegments []segment.Segment // Timing data
	Voice          string            // Voice name
	Speed          float64           // Speech speed multiplier
	Timestamp      time.Time         // Generation time
}

// FromHistory builds an item from a persisted history entry.
func FromHistory(e history.Entry) Item {
	return Item{
		Text:           e.Text,
		Audio:          e.Audio,
		TimingSegments: segment.Clone(e.TimingSegments),
		Voice:          e.Voice,
		Speed:          e.Speed,
		Timestamp:      e.CreatedAt,
	}
}

// Duration returns the item length in seconds.
func (i Item) Duration() float64 {
	return segment.Duration(i.TimingSegments)
}

// State represents the queue. CurrentIndex is -1 or a valid index into Items.
type State struct {
	Items        []Item
	CurrentIndex int
}

// initialState returns the empty queue.
func initialState() State {
	return State{
		Items:        []Item{},
		CurrentIndex: -1,
	}
}

// Current returns the item at CurrentIndex.
func (s State) Current() (Item, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.CurrentIndex], true
}

// IndexOf returns the position of queueID, or -1.
func (s State) IndexOf(queueID string) int {
	for i, it := range s.Items {
		if it.QueueID == queueID {
			return i
		}
	}
	return -1
}

// TotalDuration returns the summed length of all items in seconds.
func (s State) TotalDuration() float64 {
	var total float64
	for _, it := range s.Items {
		total += it.Duration()
	}
	return total
}

func cloneItems(items []Item) []Item {
	dup := make([]Item, len(items))
	copy(dup, items)
	return dup
}
