package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/campuskart/backend/internal/models"
)

// snapshot is the on-disk form of a MemoryStore.
type snapshot struct {
	Listings     []models.Listing         `json:"listings"`
	TrustRecords []models.UserTrustRecord `json:"trust_records"`
}

// JSONStore persists MemoryStore snapshots to a single JSON file.
type JSONStore struct {
	mu       sync.Mutex
	filePath string
}

// NewJSONStore creates a new JSON store at the specified path
func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return &JSONStore{
		filePath: filepath.Join(dataDir, filename),
	}, nil
}

// Load reads the last snapshot. A missing file yields an empty snapshot.
func (s *JSONStore) Load() (*snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &snapshot{}
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes the snapshot through a temp file and an atomic rename.
func (s *JSONStore) Save(data *snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tempFile := s.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, s.filePath)
}

// Path is the snapshot file location.
func (s *JSONStore) Path() string {
	return s.filePath
}
