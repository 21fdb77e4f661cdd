package session

import (
	"context"

	"github.com/osa030/mobiletts/internal/app/settings"
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/domain/history"
)

// Generator synthesizes speech.
type Generator interface {
	Generate(ctx context.Context, text, voice string, speed float64) (audio.Clip, error)
}

// TokenAware is implemented by generators that need the current auth token.
type TokenAware interface {
	SetToken(token string)
}

// HistoryRepository persists generation results.
type HistoryRepository interface {
	List(ctx context.Context) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
	Save(ctx context.Context, entry history.Entry) error
	Delete(ctx context.Context, id string) error
}

// TokenRepository is an opaque key-value store for the auth token.
type TokenRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Deps are the collaborators of a Manager. Generator is required; the
// repositories are optional and skip persistence when nil.
type Deps struct {
	Generator Generator
	History   HistoryRepository
	Settings  settings.Repository
	Tokens    TokenRepository
	Registry  *audio.Registry // defaults to a new registry
}
