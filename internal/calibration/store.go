package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const profileFileName = "calibration.json"

// Store owns the on-disk profile representation. It is the only writer; a
// single atomic rename per save is the whole durability protocol.
type Store struct {
	fs       afero.Fs
	dir      string
	path     string
	validity time.Duration
	logger   zerolog.Logger
}

// NewStore creates a Store rooted at dir on the given filesystem. validity is
// the window after which a profile is considered stale.
func NewStore(fs afero.Fs, dir string, validity time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		fs:       fs,
		dir:      dir,
		path:     filepath.Join(dir, profileFileName),
		validity: validity,
		logger:   logger.With().Str("component", "calibration-store").Logger(),
	}
}

// Path returns the profile file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted profile. A missing or corrupt file yields
// (nil, nil): the caller recalibrates, it never needs to handle parse errors.
func (s *Store) Load() (*Profile, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, nil
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Calibration file corrupt, will recalibrate")
		return nil, nil
	}
	if p.CapturedAt.IsZero() {
		s.logger.Warn().Str("path", s.path).Msg("Calibration file missing timestamp, will recalibrate")
		return nil, nil
	}
	return &p, nil
}

// Save writes the profile atomically: write to a temp file, then rename over
// the target, so a crash mid-write cannot corrupt the stored profile.
func (s *Store) Save(p *Profile) error {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}

	if p.Version == "" {
		p.Version = ProfileVersion
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calibration profile: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration profile: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace calibration profile: %w", err)
	}

	s.logger.Debug().
		Float64("energyThreshold", p.EnergyThreshold).
		Float64("pauseThreshold", p.PauseThreshold).
		Float64("successRate", p.SuccessRate).
		Msg("Calibration profile saved")
	return nil
}

// IsStale reports whether the profile has exceeded the validity window.
// Exactly at the window edge counts as stale.
func (s *Store) IsStale(p *Profile, now time.Time) bool {
	if p == nil {
		return true
	}
	return now.Sub(p.CapturedAt) >= s.validity
}

// Watch delivers reloaded profiles when the file changes on disk, so edits by
// an external tool (e.g. a hand-edited wake word) take effect without a
// restart. Only meaningful on the OS filesystem; returns an error otherwise.
func (s *Store) Watch(ctx context.Context, fn func(*Profile)) error {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return fmt.Errorf("profile watch requires the OS filesystem")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create profile watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch calibration directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				p, err := s.Load()
				if err != nil || p == nil {
					continue
				}
				fn(p)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("Profile watcher error")
			}
		}
	}()

	return nil
}
