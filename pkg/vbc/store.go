// Package vbc persists the virtual balise covers ordered by trackside
package vbc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/onboard"
)

type key struct {
	country int
	marker  int
}

// Store is a file backed set of virtual balise covers. Each line of the file
// holds "country marker expiry" with the expiry in Unix milliseconds.
type Store struct {
	mu     sync.RWMutex
	path   string
	covers map[key]time.Time
	now    func() time.Time
	logger zerolog.Logger
}

// Open loads the covers from path. A missing file is an empty store and
// expired covers are dropped.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		covers: make(map[key]time.Time),
		now:    time.Now,
		logger: logger.With().Str("component", "vbc").Logger(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open covers: %w", err)
	}
	defer f.Close()

	now := s.now()
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var country, marker int
		var expiry int64
		if _, err := fmt.Sscan(text, &country, &marker, &expiry); err != nil {
			return fmt.Errorf("failed to parse covers line %d: %w", line, err)
		}
		if at := time.UnixMilli(expiry); at.After(now) {
			s.covers[key{country, marker}] = at
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read covers: %w", err)
	}

	s.logger.Info().Int("covers", len(s.covers)).Str("path", s.path).Msg("Loaded virtual balise covers")
	return nil
}

// Covered implements onboard.Covers
func (s *Store) Covered(country, marker int, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.covers[key{country, marker}]
	return ok && expiry.After(now)
}

// Set implements onboard.Covers
func (s *Store) Set(c onboard.Cover) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.covers[key{c.Country, c.Marker}] = c.Expiry
	s.logger.Info().Int("nid_c", c.Country).Int("nid_vbcmk", c.Marker).Time("expiry", c.Expiry).Msg("Cover set")
	return s.write()
}

// Remove implements onboard.Covers
func (s *Store) Remove(country, marker int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.covers[key{country, marker}]; !ok {
		return nil
	}
	delete(s.covers, key{country, marker})
	s.logger.Info().Int("nid_c", country).Int("nid_vbcmk", marker).Msg("Cover removed")
	return s.write()
}

// RetainCountry implements onboard.Covers. Covers of other countries are removed.
func (s *Store) RetainCountry(country int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.covers {
		if k.country != country {
			delete(s.covers, k)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return s.write()
}

// List returns the covers ordered by country and marker
func (s *Store) List() []onboard.Cover {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]onboard.Cover, 0, len(s.covers))
	for k, expiry := range s.covers {
		out = append(out, onboard.Cover{Country: k.country, Marker: k.marker, Expiry: expiry})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Marker < out[j].Marker
	})
	return out
}

// write replaces the file. Caller holds the lock.
func (s *Store) write() error {
	var b strings.Builder
	for k, expiry := range s.covers {
		fmt.Fprintf(&b, "%d %d %d\n", k.country, k.marker, expiry.UnixMilli())
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".vbcs-*")
	if err != nil {
		return fmt.Errorf("failed to write covers: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write covers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write covers: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace covers: %w", err)
	}
	return nil
}

var _ onboard.Covers = (*Store)(nil)
