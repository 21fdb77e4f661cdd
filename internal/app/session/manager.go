// Package session provides the session manager that owns every store.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/auth"
	apphistory "github.com/osa030/mobiletts/internal/app/history"
	"github.com/osa030/mobiletts/internal/app/player"
	"github.com/osa030/mobiletts/internal/app/queue"
	"github.com/osa030/mobiletts/internal/app/settings"
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/history"
)

// TokenKey is the TokenRepository key holding the auth token.
const TokenKey = "auth_token"

var (
	ErrEmptyText        = errors.New("text is empty")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStaleResponse    = errors.New("superseded by a newer request")
	ErrNoHistory        = errors.New("history is not configured")
	ErrClosed           = errors.New("session is closed")
)

// Request is a speech generation request. Zero Voice and Speed fall back to
// the user's defaults.
type Request struct {
	Text    string
	Voice   string
	Speed   float64
	Enqueue bool // also append the result to the queue
}

// Manager owns the stores of one client session and wires them to the
// collaborators.
type Manager struct {
	mu sync.RWMutex

	// Stores
	auth     *auth.Store
	player   *player.Store
	queue    *queue.Store
	settings *settings.Store
	history  *apphistory.Signal

	// Collaborators
	generator   Generator
	historyRepo HistoryRepository
	tokens      TokenRepository
	registry    *audio.Registry

	// Generation fencing: only the request holding the latest sequence may
	// write the player store.
	genMu  sync.Mutex
	genSeq atomic.Uint64

	unsubscribeAuth func()
	closed          bool
}

// New creates a session manager. The persisted token and settings are
// restored from deps.
func New(ctx context.Context, deps Deps) (*Manager, error) {
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}

	registry := deps.Registry
	if registry == nil {
		registry = audio.NewRegistry()
	}

	p := player.NewStore()
	m := &Manager{
		auth:        auth.NewStore(),
		player:      p,
		queue:       queue.NewStore(p, registry),
		settings:    settings.NewStore(deps.Settings),
		history:     apphistory.NewSignal(),
		generator:   deps.Generator,
		historyRepo: deps.History,
		tokens:      deps.Tokens,
		registry:    registry,
	}

	if ta, ok := deps.Generator.(TokenAware); ok {
		m.unsubscribeAuth = m.auth.Subscribe(func(st auth.State) {
			if st.Token != nil {
				ta.SetToken(*st.Token)
			} else {
				ta.SetToken("")
			}
		})
	}

	if m.tokens != nil {
		token, ok, err := m.tokens.Get(ctx, TokenKey)
		if err != nil {
			m.Close()
			return nil, errors.Wrap(err, "failed to restore token")
		}
		if ok && token != "" {
			m.auth.SetToken(token)
			zlog.Info().Msg("session: restored auth token")
		}
	}

	return m, nil
}

// Auth returns the auth store.
func (m *Manager) Auth() *auth.Store { return m.auth }

// Player returns the player store.
func (m *Manager) Player() *player.Store { return m.player }

// Queue returns the queue store.
func (m *Manager) Queue() *queue.Store { return m.queue }

// Settings returns the settings store.
func (m *Manager) Settings() *settings.Store { return m.settings }

// History returns the history invalidation signal.
func (m *Manager) History() *apphistory.Signal { return m.history }

// Login stores token and persists it.
func (m *Manager) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}

	m.auth.SetToken(token)
	if m.tokens != nil {
		if err := m.tokens.Set(ctx, TokenKey, token); err != nil {
			return errors.Wrap(err, "failed to persist token")
		}
	}
	zlog.Info().Msg("session: logged in")
	return nil
}

// Logout clears the token, the player and the queue.
func (m *Manager) Logout(ctx context.Context) error {
	return m.logout(ctx, "")
}

// logout clears the session. When rejected is set, the persisted token is
// removed only if it is the rejected one, so a token supplied from outside the
// store cannot wipe the stored login.
func (m *Manager) logout(ctx context.Context, rejected string) error {
	// Invalidate in-flight generations.
	m.genMu.Lock()
	m.genSeq.Add(1)
	m.genMu.Unlock()

	m.auth.ClearToken()
	m.player.Reset()
	m.queue.Clear()

	if m.tokens != nil {
		forget := true
		if rejected != "" {
			stored, ok, err := m.tokens.Get(ctx, TokenKey)
			if err != nil {
				return errors.Wrap(err, "failed to read persisted token")
			}
			forget = ok && stored == rejected
		}
		if forget {
			if err := m.tokens.Delete(ctx, TokenKey); err != nil {
				return errors.Wrap(err, "failed to delete persisted token")
			}
		} else {
			zlog.Debug().Msg("session: rejected token was not the persisted one, keeping it")
		}
	}
	zlog.Info().Msg("session: logged out")
	return nil
}

// Generate synthesizes req and loads the result into the player. Failures are
// also recorded as the player's display error. A response that arrives after
// a newer request was issued is discarded with ErrStaleResponse.
func (m *Manager) Generate(ctx context.Context, req Request) (history.Entry, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return history.Entry{}, ErrEmptyText
	}
	if m.isClosed() {
		return history.Entry{}, ErrClosed
	}
	if !m.auth.IsAuthenticated() {
		m.player.SetError("Please log in to generate speech")
		return history.Entry{}, ErrNotAuthenticated
	}

	prefs := m.settings.State()
	voice := req.Voice
	if voice == "" {
		voice = prefs.DefaultVoice
	}
	speed := req.Speed
	if speed <= 0 {
		speed = prefs.DefaultSpeed
	}

	token, _ := m.auth.Token()

	m.genMu.Lock()
	seq := m.genSeq.Add(1)
	m.player.SetLoading(true)
	m.player.ClearError()
	m.genMu.Unlock()

	zlog.Debug().Msgf("session: generating: seq=%d voice=%s speed=%v chars=%d", seq, voice, speed, len(text))
	clip, err := m.generator.Generate(ctx, text, voice, speed)

	m.genMu.Lock()
	if seq != m.genSeq.Load() {
		m.genMu.Unlock()
		zlog.Debug().Msgf("session: discarding stale response: seq=%d", seq)
		return history.Entry{}, ErrStaleResponse
	}

	if err != nil {
		m.player.SetError(displayError(err))
		m.player.SetLoading(false)
		m.genMu.Unlock()

		if isUnauthorized(err) {
			zlog.Warn().Msg("session: token rejected, logging out")
			if lerr := m.logout(ctx, token); lerr != nil {
				zlog.Error().Err(lerr).Msg("session: logout after rejected token failed")
			}
			// Logout resets the player; keep the reason visible.
			m.player.SetError(displayError(err))
		}
		return history.Entry{}, errors.Wrap(err, "failed to generate speech")
	}

	h := m.registry.Create(clip.Data)
	m.player.SetAudioHandle(h)
	m.player.SetAudioData(clip.Data)
	m.player.SetTimingSegments(clip.Segments)
	m.player.SetText(text)
	m.player.SetCurrentTime(0)
	m.player.SetDuration(clip.Duration())
	m.player.SetLoading(false)
	if prefs.AutoPlay {
		m.player.RequestPlay()
	}
	m.genMu.Unlock()

	entry := history.NewEntry(text, voice, speed, clip.Data, clip.Segments)
	m.saveHistory(ctx, entry)

	if req.Enqueue {
		m.queue.Add(queue.FromHistory(entry))
	}

	zlog.Info().Msgf("session: generated speech: id=%s chunks=%d duration=%.2fs", entry.ID, len(clip.Segments), entry.Duration)
	return entry, nil
}

// OnLoadedMetadata is called when the audio element has loaded url.
func (m *Manager) OnLoadedMetadata(url string, duration float64) {
	st := m.player.State()
	if st.AudioHandle == nil || st.AudioHandle.URL() != url {
		zlog.Debug().Msgf("session: metadata for stale handle: url=%s", url)
		return
	}
	if duration > 0 {
		m.player.SetDuration(duration)
	}
	m.player.AudioReady(url)
}

// OnTimeUpdate is called as playback progresses.
func (m *Manager) OnTimeUpdate(t float64) {
	m.player.SetCurrentTime(t)
}

// OnPlay is called when the audio element starts playing.
func (m *Manager) OnPlay() {
	m.player.SetPlaying(true)
}

// OnPause is called when the audio element pauses.
func (m *Manager) OnPause() {
	m.player.SetPlaying(false)
}

// OnEnded is called when the audio element reaches the end. It advances the
// queue and reports whether another item was started.
func (m *Manager) OnEnded() bool {
	m.player.SetPlaying(false)
	if m.queue.PlayNext() {
		return true
	}
	m.player.SetCurrentTime(m.player.State().Duration)
	return false
}

// ListHistory returns persisted entries, newest first.
func (m *Manager) ListHistory(ctx context.Context) ([]history.Entry, error) {
	if m.historyRepo == nil {
		return nil, ErrNoHistory
	}
	entries, err := m.historyRepo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history")
	}
	return entries, nil
}

// GetHistory returns the persisted entry with id.
func (m *Manager) GetHistory(ctx context.Context, id string) (history.Entry, error) {
	if m.historyRepo == nil {
		return history.Entry{}, ErrNoHistory
	}
	entry, err := m.historyRepo.Get(ctx, id)
	if err != nil {
		return history.Entry{}, errors.Wrap(err, "failed to get history entry")
	}
	return entry, nil
}

// DeleteHistory removes the entry with id and bumps the history signal.
func (m *Manager) DeleteHistory(ctx context.Context, id string) error {
	if m.historyRepo == nil {
		return ErrNoHistory
	}
	if err := m.historyRepo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "failed to delete history entry")
	}
	m.history.NotifyUpdate()
	zlog.Info().Msgf("session: deleted history entry: id=%s", id)
	return nil
}

// EnqueueHistory appends the persisted entry with id to the queue and
// returns its queue ID.
func (m *Manager) EnqueueHistory(ctx context.Context, id string) (string, error) {
	entry, err := m.GetHistory(ctx, id)
	if err != nil {
		return "", err
	}
	return m.queue.Add(queue.FromHistory(entry)), nil
}

// PlayHistory enqueues the entry with id and starts it.
func (m *Manager) PlayHistory(ctx context.Context, id string) error {
	if _, err := m.EnqueueHistory(ctx, id); err != nil {
		return err
	}
	m.queue.PlayIndex(m.queue.Len() - 1)
	return nil
}

// Close releases every audio handle and drops all subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.genMu.Lock()
	m.genSeq.Add(1)
	m.genMu.Unlock()

	if m.unsubscribeAuth != nil {
		m.unsubscribeAuth()
	}
	m.queue.Clear()
	m.player.Close()
	if n := m.registry.ReleaseAll(); n > 0 {
		zlog.Debug().Msgf("session: released leftover audio handles: count=%d", n)
	}
	zlog.Debug().Msg("session: closed")
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) saveHistory(ctx context.Context, entry history.Entry) {
	if m.historyRepo == nil {
		return
	}
	if err := m.historyRepo.Save(ctx, entry); err != nil {
		zlog.Warn().Err(err).Msgf("session: failed to save history entry: id=%s", entry.ID)
		return
	}
	m.history.NotifyUpdate()
}

// displayError turns err into a message for the user.
func displayError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Generation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Generation timed out"
	}
	var detailed interface{ Unauthorized() bool }
	if errors.As(err, &detailed) && detailed.Unauthorized() {
		return "Session expired, please log in again"
	}
	return "Failed to generate speech: " + err.Error()
}

func isUnauthorized(err error) bool {
	var detailed interface{ Unauthorized() bool }
	return errors.As(err, &detailed) && detailed.Unauthorized()
}
