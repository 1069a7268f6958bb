package calibration

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/livepeer/retention-engine/log"
)

// Store holds the current calibration Profile per user, persisted as YAML
// and hot-reloaded on change, grounded on the teacher's watermark-path file
// watcher pattern (spec §4.11, §6).
type Store struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	path     string
	watcher  *fsnotify.Watcher
}

type persistedFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// NewStore loads an existing calibration file if present and starts
// watching it for external edits (e.g. an operator hand-tuning weights).
func NewStore(path string) (*Store, error) {
	s := &Store{profiles: map[string]Profile{}, path: path}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		if !os.IsNotExist(err) {
			return nil, err
		}
		return s, nil
	}
	s.watcher = watcher
	go s.watchLoop()
	return s, nil
}

func (s *Store) watchLoop() {
	for event := range s.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := s.load(); err != nil {
			log.LogNoJobID("calibration file reload failed", "error", err, "path", s.path)
		}
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var pf persistedFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles = pf.Profiles
	s.mu.Unlock()
	return nil
}

// Get returns the cached profile for a user, or Default() if none is
// persisted yet.
func (s *Store) Get(userID string) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	return Default()
}

// Update stores a freshly computed profile and flushes the whole file to
// disk.
func (s *Store) Update(userID string, profile Profile) error {
	s.mu.Lock()
	s.profiles[userID] = profile
	snapshot := make(map[string]Profile, len(s.profiles))
	for k, v := range s.profiles {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(persistedFile{Profiles: snapshot})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
