// Package session owns the per-batch scratch directories under one process-wide root.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidID = errors.New("invalid session id")

// sessionName matches only directories NewID could have produced.
var sessionName = regexp.MustCompile(`^[0-9a-f]{8}$`)

type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// NewID returns 8 random hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) Path(id string) string {
	return filepath.Join(m.root, id)
}

// Create makes the session directory (and the root) if missing and returns its path.
func (m *Manager) Create(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	path := m.Path(id)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("error creating session directory: %w", err)
	}
	log.Debug().Str("op", "session/manager").Str("session", id).Msgf("Temp dir ready: %s", path)
	return path, nil
}

// Destroy removes the session tree. It never fails; problems are only logged.
func (m *Manager) Destroy(id string) {
	if !validID(id) {
		return
	}
	path := m.Path(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.Error().Str("op", "session/manager").Err(err).Msgf("Cleanup failed for %s", path)
		return
	}
	log.Info().Str("op", "session/manager").Str("session", id).Msgf("Cleaned temp dir: %s", path)
}

// Sweep deletes leftover session directories under the root, e.g. after a crash.
// Anything not named like a session is left alone, so a shared root is safe.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading temp root: %w", err)
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !sessionName.MatchString(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Str("op", "session/manager").Int("removed", removed).Msg("Swept stale session directories")
	}
	return removed, errors.Join(errs...)
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
