// Package prefs persists user settings as TOML.
// Settings are stored in ~/.config/mobiletts/settings.toml by default.
package prefs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	toml "github.com/pelletier/go-toml/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/settings"
)

const defaultPrefsPath = "~/.config/mobiletts/settings.toml"

// DefaultPath returns the default settings file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// fileFormat is the on-disk layout.
type fileFormat struct {
	DefaultVoice string  `toml:"default_voice"`
	DefaultSpeed float64 `toml:"default_speed"`
	AutoPlay     bool    `toml:"auto_play"`
}

// File is a settings repository backed by a TOML file.
type File struct {
	path string
}

// NewFile creates a repository for path. An empty path selects DefaultPath.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the resolved file path.
func (f *File) Path() (string, error) {
	return resolvePath(f.path)
}

// Load reads settings, falling back to defaults for a missing or unreadable
// file and for individual missing or invalid keys.
func (f *File) Load() (settings.State, error) {
	defaults := settings.Defaults()

	resolved, err := resolvePath(f.path)
	if err != nil {
		return defaults, nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zlog.Warn().Err(err).Msgf("prefs: failed to open settings: path=%s", resolved)
		}
		return defaults, nil
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		zlog.Warn().Err(err).Msgf("prefs: failed to read settings: path=%s", resolved)
		return defaults, nil
	}

	raw := fileFormat{
		DefaultVoice: defaults.DefaultVoice,
		DefaultSpeed: defaults.DefaultSpeed,
		AutoPlay:     defaults.AutoPlay,
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		zlog.Warn().Err(err).Msgf("prefs: corrupt settings file, using defaults: path=%s", resolved)
		return defaults, nil
	}

	st := settings.State{
		DefaultVoice: strings.TrimSpace(raw.DefaultVoice),
		DefaultSpeed: raw.DefaultSpeed,
		AutoPlay:     raw.AutoPlay,
	}
	if st.DefaultVoice == "" {
		st.DefaultVoice = defaults.DefaultVoice
	}
	if st.DefaultSpeed <= 0 {
		st.DefaultSpeed = defaults.DefaultSpeed
	}
	return st, nil
}

// Save writes settings, creating directories as needed.
func (f *File) Save(st settings.State) error {
	resolved, err := resolvePath(f.path)
	if err != nil {
		return errors.Wrap(err, "failed to resolve settings path")
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errors.Wrap(err, "failed to create settings dir")
	}

	data, err := toml.Marshal(fileFormat{
		DefaultVoice: st.DefaultVoice,
		DefaultSpeed: st.DefaultSpeed,
		AutoPlay:     st.AutoPlay,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}

	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write settings")
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultPrefsPath)
	}
	return ExpandPath(path)
}

// ExpandPath resolves a leading "~" to the home directory and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve home dir")
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
