package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned when the ledger has no record for a droplet.
var ErrNotFound = errors.New("droplet not recorded")

// DropletRecord is a ledger entry for a droplet created by this tool
type DropletRecord struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Region     string     `json:"region"`
	Size       string     `json:"size"`
	Image      string     `json:"image"`
	PublicIPv4 string     `json:"public_ipv4,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the droplet was deprovisioned.
func (r DropletRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// Store persists droplet records
type Store interface {
	Put(ctx context.Context, rec DropletRecord) error
	Get(ctx context.Context, id int) (DropletRecord, error)
	List(ctx context.Context) ([]DropletRecord, error)
	MarkDeleted(ctx context.Context, id int, at time.Time) error
	Close() error
}

// fileState is the on-disk document of a FileStore
type fileState struct {
	UpdatedAt time.Time                `json:"updated_at"`
	Droplets  map[string]DropletRecord `json:"droplets"`
}

// FileStore keeps the ledger in a local JSON file
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Put inserts or replaces a record
func (s *FileStore) Put(_ context.Context, rec DropletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	st.Droplets[strconv.Itoa(rec.ID)] = rec
	return s.save(st)
}

// Get returns the record for id
func (s *FileStore) Get(_ context.Context, id int) (DropletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return DropletRecord{}, err
	}
	rec, ok := st.Droplets[strconv.Itoa(id)]
	if !ok {
		return DropletRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, nil
}

// List returns all records, oldest first
func (s *FileStore) List(_ context.Context) ([]DropletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return nil, err
	}
	recs := make([]DropletRecord, 0, len(st.Droplets))
	for _, r := range st.Droplets {
		recs = append(recs, r)
	}
	sortRecords(recs)
	return recs, nil
}

// MarkDeleted stamps the record for id as deleted
func (s *FileStore) MarkDeleted(_ context.Context, id int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	key := strconv.Itoa(id)
	rec, ok := st.Droplets[key]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	rec.DeletedAt = &at
	rec.Status = "deleted"
	st.Droplets[key] = rec
	return s.save(st)
}

// Close is a no-op for file storage
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (*fileState, error) {
	st := &fileState{Droplets: make(map[string]DropletRecord)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if st.Droplets == nil {
		st.Droplets = make(map[string]DropletRecord)
	}
	return st, nil
}

func (s *FileStore) save(st *fileState) error {
	st.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	// Replace atomically.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

func sortRecords(recs []DropletRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
