// Package cache remembers when each device was last connected, across restarts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Sherpa/pkg/bus"
	"Sherpa/pkg/logger"
)

// fileName is the cache file inside the data dir
const fileName = "last_seen.json"

// Service keeps last-seen timestamps keyed by DeviceRef.Key (platform/kind/id)
type Service struct {
	path string

	lastSeen   map[string]int64 // unix ms
	lastSeenMu sync.RWMutex

	saveMu sync.Mutex
}

// New loads the cache from dataDir, creating the directory if needed.
// A missing or unreadable file starts an empty cache.
func New(dataDir string) (*Service, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("cache: empty data dir")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	s := &Service{
		path:     filepath.Join(dataDir, fileName),
		lastSeen: make(map[string]int64),
	}
	s.load()
	return s, nil
}

// GetLastSeen returns the last seen timestamp for a device key, 0 if never seen
func (s *Service) GetLastSeen(key string) int64 {
	s.lastSeenMu.RLock()
	defer s.lastSeenMu.RUnlock()
	return s.lastSeen[key]
}

// Touch records ts for every key, never moving a timestamp backwards
func (s *Service) Touch(keys []string, ts int64) {
	s.lastSeenMu.Lock()
	for _, k := range keys {
		if ts > s.lastSeen[k] {
			s.lastSeen[k] = ts
		}
	}
	s.lastSeenMu.Unlock()
}

// GetAllLastSeen returns a copy of all last seen timestamps
func (s *Service) GetAllLastSeen() map[string]int64 {
	s.lastSeenMu.RLock()
	defer s.lastSeenMu.RUnlock()
	result := make(map[string]int64, len(s.lastSeen))
	for k, v := range s.lastSeen {
		result[k] = v
	}
	return result
}

// Save persists the cache to disk
func (s *Service) Save() error {
	data, err := json.Marshal(s.GetAllLastSeen())
	if err != nil {
		return err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return os.WriteFile(s.path, data, 0644)
}

func (s *Service) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var lastSeen map[string]int64
	if err := json.Unmarshal(data, &lastSeen); err != nil {
		logger.LogWarn("cache").Err(err).Str("path", s.path).Msg("Ignoring unreadable last-seen cache")
		return
	}
	if lastSeen != nil {
		s.lastSeenMu.Lock()
		s.lastSeen = lastSeen
		s.lastSeenMu.Unlock()
	}
}

// Path returns the cache file path
func (s *Service) Path() string {
	return s.path
}

// Name implements bus.Sink
func (s *Service) Name() string { return "last-seen" }

// Handle stamps every device in the event's snapshot with the event time and saves
func (s *Service) Handle(ctx context.Context, event bus.Event) error {
	if !event.HasSnapshot() {
		return nil
	}
	refs := event.Snapshot.Refs()
	if len(refs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	s.Touch(keys, event.Timestamp)
	return s.Save()
}

// Close saves the cache before shutdown
func (s *Service) Close() error {
	if err := s.Save(); err != nil {
		logger.LogError("cache").Err(err).Msg("Error saving last-seen cache on close")
		return err
	}
	return nil
}
