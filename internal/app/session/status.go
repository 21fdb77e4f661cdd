package session

import (
	"time"

	"github.com/osa030/mobiletts/internal/app/player"
	"github.com/osa030/mobiletts/internal/app/settings"
)

// Status is a point-in-time view across all stores.
type Status struct {
	Authenticated bool
	Player        player.State
	Progress      float64 // Playback position as a fraction of Duration
	QueueSize     int
	QueueDuration float64 // Seconds
	CurrentIndex  int
	Settings      settings.State
	HistoryAt     time.Time
	LiveHandles   int
}

// Status returns the current session status.
func (m *Manager) Status() *Status {
	q := m.queue.State()
	p := m.player.State()
	return &Status{
		Authenticated: m.auth.IsAuthenticated(),
		Player:        p,
		Progress:      p.Progress(),
		QueueSize:     len(q.Items),
		QueueDuration: q.TotalDuration(),
		CurrentIndex:  q.CurrentIndex,
		Settings:      m.settings.State(),
		HistoryAt:     m.history.LastUpdated(),
		LiveHandles:   m.registry.Live(),
	}
}
