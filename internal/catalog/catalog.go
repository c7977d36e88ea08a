// Package catalog keeps a JSON record of inspected artifacts.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"tangled.org/atscan.net/martifact/internal/report"
)

const (
	// CATALOG_FILE is the default catalog filename
	CATALOG_FILE = "martifact_catalog.json"

	// CATALOG_VERSION is the current catalog format version
	CATALOG_VERSION = "1.0"
)

// Entry records one inspection
type Entry struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	DeviceTypes  []string  `json:"device_types,omitempty"`
	Format       string    `json:"format,omitempty"`
	Version      int       `json:"version,omitempty"`
	PayloadCount int       `json:"payload_count"`
	Size         int64     `json:"size_bytes"`
	Signed       bool      `json:"signed"`
	Valid        bool      `json:"valid"`
	Errors       []string  `json:"errors,omitempty"`
	InspectedAt  time.Time `json:"inspected_at"`
}

// NewEntry summarizes a report under a fresh ID
func NewEntry(rep *report.Report) *Entry {
	e := &Entry{
		ID:           uuid.NewString(),
		Source:       rep.Source,
		ArtifactName: rep.ArtifactName,
		DeviceTypes:  rep.DeviceTypes,
		Format:       rep.Format,
		Version:      rep.Version,
		PayloadCount: len(rep.Payloads),
		Size:         rep.BytesRead,
		Signed:       rep.Signed,
		Valid:        rep.Valid,
		InspectedAt:  rep.InspectedAt,
	}
	if rep.Error != nil {
		e.Errors = append(e.Errors, rep.Error.Message)
	}
	for _, p := range rep.Mismatches() {
		e.Errors = append(e.Errors, fmt.Sprintf("payload %04d: %s", p.Index, p.Error))
	}
	return e
}

// Catalog is the JSON catalog file. It is safe for concurrent use.
type Catalog struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Entries   []*Entry  `json:"entries"`

	mu sync.RWMutex `json:"-"`
}

// NewCatalog creates a new empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		Version:   CATALOG_VERSION,
		Entries:   make([]*Entry, 0),
		UpdatedAt: time.Now().UTC(),
	}
}

// LoadCatalog loads a catalog from a file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if c.Version != CATALOG_VERSION {
		return nil, fmt.Errorf("unsupported catalog version: %s (expected %s)", c.Version, CATALOG_VERSION)
	}
	if c.Entries == nil {
		c.Entries = make([]*Entry, 0)
	}

	return &c, nil
}

// LoadOrCreate loads path, or returns an empty catalog if it does not exist
func LoadOrCreate(path string) (*Catalog, error) {
	c, err := LoadCatalog(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCatalog(), nil
	}
	return c, err
}

// Save writes the catalog atomically (temp file, then rename)
func (c *Catalog) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Add adds an entry, replacing one with the same ID. Entries stay sorted by
// inspection time.
func (c *Catalog) Add(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	for i, existing := range c.Entries {
		if existing.ID == e.ID {
			c.Entries[i] = e
			c.sort()
			return
		}
	}

	c.Entries = append(c.Entries, e)
	c.sort()
}

// Get retrieves an entry by ID
func (c *Catalog) Get(id string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.Entries {
		if e.ID == id {
			return e, nil
		}
	}

	return nil, fmt.Errorf("entry %s not found in catalog", id)
}

// List returns all entries
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Entry, len(c.Entries))
	copy(result, c.Entries)
	return result
}

// Snapshot returns a copy that can be marshalled while the catalog changes
func (c *Catalog) Snapshot() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*Entry, len(c.Entries))
	copy(entries, c.Entries)
	return &Catalog{Version: c.Version, UpdatedAt: c.UpdatedAt, Entries: entries}
}

// FindByName returns entries for an artifact name, oldest first
func (c *Catalog) FindByName(name string) []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Entry
	for _, e := range c.Entries {
		if e.ArtifactName == name {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the number of entries
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Entries)
}

// Stats returns statistics about the catalog
func (c *Catalog) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	valid := 0
	var totalSize int64
	names := make(map[string]bool)
	for _, e := range c.Entries {
		if e.Valid {
			valid++
		}
		totalSize += e.Size
		if e.ArtifactName != "" {
			names[e.ArtifactName] = true
		}
	}

	return map[string]interface{}{
		"entry_count":    len(c.Entries),
		"valid_count":    valid,
		"invalid_count":  len(c.Entries) - valid,
		"artifact_names": len(names),
		"total_size":     totalSize,
		"updated_at":     c.UpdatedAt,
	}
}

// Clear removes all entries
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries = make([]*Entry, 0)
	c.UpdatedAt = time.Now().UTC()
}

func (c *Catalog) sort() {
	sort.SliceStable(c.Entries, func(i, j int) bool {
		return c.Entries[i].InspectedAt.Before(c.Entries[j].InspectedAt)
	})
}
