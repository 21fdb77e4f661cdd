package queue

import (
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/observable"
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// Player is the playback session driven by the queue.
type Player interface {
	SetText(text string)
	SetTimingSegments(segments []segment.Segment)
	SetAudioHandle(h *audio.Handle)
	RequestPlay() bool
}

// HandleFactory mints playable handles from audio bytes.
type HandleFactory interface {
	Create(data []byte) *audio.Handle
}

// Store is an ordered playlist with a pointer to the current item.
// Edits never fail: unknown IDs and out-of-range indices are no-ops.
type Store struct {
	value   *observable.Value[State]
	player  Player
	handles HandleFactory
}

// NewStore creates an empty queue that drives player.
func NewStore(player Player, handles HandleFactory) *Store {
	return &Store{
		value:   observable.New(initialState()),
		player:  player,
		handles: handles,
	}
}

// State returns a snapshot of the queue.
func (s *Store) State() State {
	st := s.value.Get()
	st.Items = cloneItems(st.Items)
	return st
}

// Subscribe registers fn for queue changes.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.value.Subscribe(func(st State) {
		st.Items = cloneItems(st.Items)
		fn(st)
	})
}

// Items returns a copy of the queued items in play order.
func (s *Store) Items() []Item {
	return cloneItems(s.value.Get().Items)
}

// Len returns the number of items.
func (s *Store) Len() int {
	return len(s.value.Get().Items)
}

// CurrentIndex returns the current pointer.
func (s *Store) CurrentIndex() int {
	return s.value.Get().CurrentIndex
}

// Current returns the current item.
func (s *Store) Current() (Item, bool) {
	return s.value.Get().Current()
}

// Add appends item with a fresh QueueID and returns the ID.
// CurrentIndex is unchanged.
func (s *Store) Add(item Item) string {
	item.QueueID = uuid.New().String()
	item.TimingSegments = segment.Clone(item.TimingSegments)

	s.value.Update(func(st State) State {
		items := make([]Item, len(st.Items), len(st.Items)+1)
		copy(items, st.Items)
		st.Items = append(items, item)
		return st
	})
	zlog.Debug().Msgf("queue: added item: queue_id=%s voice=%s", item.QueueID, item.Voice)
	return item.QueueID
}

// Remove deletes the item with queueID and keeps CurrentIndex on the same
// logical item. Removing the current item moves the pointer to the item that
// took its place, or to the new last item.
func (s *Store) Remove(queueID string) {
	s.value.UpdateIf(func(st State) (State, bool) {
		idx := st.IndexOf(queueID)
		if idx < 0 {
			return st, false
		}

		items := make([]Item, 0, len(st.Items)-1)
		items = append(items, st.Items[:idx]...)
		items = append(items, st.Items[idx+1:]...)

		cur := st.CurrentIndex
		switch {
		case idx < cur:
			cur--
		case idx == cur:
			cur = min(cur, len(items)-1)
		}

		return State{Items: items, CurrentIndex: cur}, true
	})
}

// Reorder moves the item at from to position to. Out-of-range indices are a
// no-op. CurrentIndex keeps pointing at the same item.
func (s *Store) Reorder(from, to int) {
	s.value.UpdateIf(func(st State) (State, bool) {
		n := len(st.Items)
		if from < 0 || from >= n || to < 0 || to >= n || from == to {
			return st, false
		}

		items := cloneItems(st.Items)
		moved := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]Item{moved}, items[to:]...)...)

		cur := st.CurrentIndex
		switch {
		case from == cur:
			cur = to
		case from < cur && cur <= to:
			cur--
		case to <= cur && cur < from:
			cur++
		}

		return State{Items: items, CurrentIndex: cur}, true
	})
}

// PlayIndex loads the item at index into the player, makes it current and
// requests playback. The player starts once the audio element reports the new
// handle ready. Out-of-range indices are a no-op, and so is an item removed
// while it was being loaded.
func (s *Store) PlayIndex(index int) bool {
	st := s.value.Get()
	if index < 0 || index >= len(st.Items) {
		return false
	}
	item := st.Items[index]

	h := s.handles.Create(item.Audio)
	s.player.SetAudioHandle(h)
	s.player.SetTimingSegments(item.TimingSegments)
	s.player.SetText(item.Text)

	// The queue may have been edited while the player was loading, so the
	// pointer is resolved by ID and the request dropped if the item is gone.
	current := -1
	if !s.value.UpdateIf(func(st State) (State, bool) {
		current = st.IndexOf(item.QueueID)
		if current < 0 {
			return st, false
		}
		st.CurrentIndex = current
		return st, true
	}) {
		zlog.Debug().Msgf("queue: item removed before playback: queue_id=%s", item.QueueID)
		return false
	}
	zlog.Debug().Msgf("queue: playing item: index=%d queue_id=%s url=%s", current, item.QueueID, h.URL())

	s.player.RequestPlay()
	return true
}

// PlayNext plays the item after the current one. It returns false without
// changing anything when the queue is exhausted.
func (s *Store) PlayNext() bool {
	next := s.value.Get().CurrentIndex + 1
	if next >= s.Len() {
		return false
	}
	return s.PlayIndex(next)
}

// PlayPrevious plays the item before the current one. It returns false
// without changing anything at the start of the queue.
func (s *Store) PlayPrevious() bool {
	prev := s.value.Get().CurrentIndex - 1
	if prev < 0 {
		return false
	}
	return s.PlayIndex(prev)
}

// Clear empties the queue.
func (s *Store) Clear() {
	s.value.Set(initialState())
}
