package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// writeJSONAtomic persists v to path as pretty-printed (2-space indent) UTF-8
// JSON, writing to a temp file and renaming over the destination so a reader
// never observes a partial write. Grounded on the teacher's
// providers/guards/cache.go persistToFile pattern.
func writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func compositeKey(channelID, address string) string {
	return channelID + "|" + address
}

// FileActiveStore implements ActiveStore against <data_root>/performance/tracking.json.
type FileActiveStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]*domainmodel.SignalOutcome
}

func NewFileActiveStore(path string) (*FileActiveStore, error) {
	s := &FileActiveStore{path: path, records: map[string]*domainmodel.SignalOutcome{}}
	if err := readJSON(path, &s.records); err != nil {
		return nil, fmt.Errorf("load active store: %w", err)
	}
	if s.records == nil {
		s.records = map[string]*domainmodel.SignalOutcome{}
	}
	return s, nil
}

func (s *FileActiveStore) Get(_ context.Context, channelID, address string) (*domainmodel.SignalOutcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.records[compositeKey(channelID, address)]
	return o, ok, nil
}

func (s *FileActiveStore) Put(_ context.Context, outcome *domainmodel.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[compositeKey(outcome.ChannelID, outcome.Address)] = outcome
	return writeJSONAtomic(s.path, s.records)
}

func (s *FileActiveStore) Delete(_ context.Context, channelID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, compositeKey(channelID, address))
	return writeJSONAtomic(s.path, s.records)
}

func (s *FileActiveStore) All(_ context.Context) ([]*domainmodel.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainmodel.SignalOutcome, 0, len(s.records))
	for _, o := range s.records {
		out = append(out, o)
	}
	return out, nil
}

// FileCompletedStore implements CompletedStore against
// <data_root>/completed_history.json, an append-only list.
type FileCompletedStore struct {
	mu      sync.RWMutex
	path    string
	records []*domainmodel.SignalOutcome
}

func NewFileCompletedStore(path string) (*FileCompletedStore, error) {
	s := &FileCompletedStore{path: path}
	if err := readJSON(path, &s.records); err != nil {
		return nil, fmt.Errorf("load completed store: %w", err)
	}
	return s, nil
}

func (s *FileCompletedStore) Append(_ context.Context, outcome *domainmodel.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, outcome)
	return writeJSONAtomic(s.path, s.records)
}

func (s *FileCompletedStore) ByChannelAddress(_ context.Context, channelID, address string) ([]*domainmodel.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domainmodel.SignalOutcome
	for _, o := range s.records {
		if o.ChannelID == channelID && o.Address == address {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *FileCompletedStore) All(_ context.Context) ([]*domainmodel.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainmodel.SignalOutcome, len(s.records))
	copy(out, s.records)
	return out, nil
}

// FileScrapingProgressStore implements ScrapingProgressStore against
// <data_root>/scraped_channels.json.
type FileScrapingProgressStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]*domainmodel.ScrapingProgress
}

func NewFileScrapingProgressStore(path string) (*FileScrapingProgressStore, error) {
	s := &FileScrapingProgressStore{path: path, records: map[string]*domainmodel.ScrapingProgress{}}
	if err := readJSON(path, &s.records); err != nil {
		return nil, fmt.Errorf("load scraping progress: %w", err)
	}
	if s.records == nil {
		s.records = map[string]*domainmodel.ScrapingProgress{}
	}
	return s, nil
}

func (s *FileScrapingProgressStore) Get(_ context.Context, channelID string) (*domainmodel.ScrapingProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[channelID]
	return p, ok, nil
}

func (s *FileScrapingProgressStore) Put(_ context.Context, progress *domainmodel.ScrapingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[progress.ChannelID] = progress
	return writeJSONAtomic(s.path, s.records)
}

func (s *FileScrapingProgressStore) All(_ context.Context) ([]*domainmodel.ScrapingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainmodel.ScrapingProgress, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p)
	}
	return out, nil
}

// FileBlacklistStore implements BlacklistStore against
// <data_root>/dead_tokens_blacklist.json.
type FileBlacklistStore struct {
	mu      sync.RWMutex
	path    string
	entries []domainmodel.DeadTokenEntry
	index   map[string]bool
}

func NewFileBlacklistStore(path string) (*FileBlacklistStore, error) {
	s := &FileBlacklistStore{path: path, index: map[string]bool{}}
	if err := readJSON(path, &s.entries); err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	for _, e := range s.entries {
		s.index[blacklistKey(e.Chain, e.Address)] = true
	}
	return s, nil
}

func blacklistKey(chain domainmodel.Chain, address string) string {
	return string(chain) + "|" + address
}

func (s *FileBlacklistStore) Contains(_ context.Context, chain domainmodel.Chain, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[blacklistKey(chain, address)], nil
}

func (s *FileBlacklistStore) Add(_ context.Context, entry domainmodel.DeadTokenEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := blacklistKey(entry.Chain, entry.Address)
	if s.index[key] {
		return nil
	}
	s.entries = append(s.entries, entry)
	s.index[key] = true
	return writeJSONAtomic(s.path, s.entries)
}

func (s *FileBlacklistStore) All(_ context.Context) ([]domainmodel.DeadTokenEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainmodel.DeadTokenEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
