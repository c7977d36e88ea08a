package catalog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/types"
)

func entry(name string, at time.Time, valid bool) *catalog.Entry {
	return &catalog.Entry{
		Source:       name + ".mender",
		ArtifactName: name,
		Format:       "mender",
		Version:      3,
		PayloadCount: 1,
		Size:         1024,
		Valid:        valid,
		InspectedAt:  at,
	}
}

// ====================================================================================
// CATALOG CREATION & BASIC OPERATIONS
// ====================================================================================

func TestCatalogCreation(t *testing.T) {
	c := catalog.NewCatalog()

	if c.Version != catalog.CATALOG_VERSION {
		t.Errorf("version mismatch: got %s, want %s", c.Version, catalog.CATALOG_VERSION)
	}
	if c.Count() != 0 {
		t.Error("new catalog should be empty")
	}
}

func TestCatalogAdd(t *testing.T) {
	t.Run("AssignsID", func(t *testing.T) {
		c := catalog.NewCatalog()
		e := entry("release-1", time.Now(), true)
		c.Add(e)

		if e.ID == "" {
			t.Fatal("Add should assign an ID")
		}
		got, err := c.Get(e.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ArtifactName != "release-1" {
			t.Errorf("name mismatch: got %s", got.ArtifactName)
		}
	})

	t.Run("SortedByInspectionTime", func(t *testing.T) {
		c := catalog.NewCatalog()
		base := time.Now()
		for _, offset := range []int{3, 1, 2} {
			c.Add(entry(fmt.Sprintf("r%d", offset), base.Add(time.Duration(offset)*time.Minute), true))
		}

		entries := c.List()
		for i, want := range []string{"r1", "r2", "r3"} {
			if entries[i].ArtifactName != want {
				t.Errorf("entry %d: got %s, want %s", i, entries[i].ArtifactName, want)
			}
		}
	})

	t.Run("ReplaceByID", func(t *testing.T) {
		c := catalog.NewCatalog()
		e := entry("release-1", time.Now(), false)
		c.Add(e)

		updated := entry("release-1", time.Now(), true)
		updated.ID = e.ID
		c.Add(updated)

		if c.Count() != 1 {
			t.Errorf("count should stay 1, got %d", c.Count())
		}
		got, _ := c.Get(e.ID)
		if !got.Valid {
			t.Error("entry should have been replaced")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		c := catalog.NewCatalog()
		if _, err := c.Get("nope"); err == nil {
			t.Error("expected error for missing entry")
		}
	})

	t.Run("ListIsCopy", func(t *testing.T) {
		c := catalog.NewCatalog()
		c.Add(entry("a", time.Now(), true))

		list := c.List()
		list[0] = nil
		if c.List()[0] == nil {
			t.Error("List should return a copy")
		}
	})
}

func TestCatalogQueries(t *testing.T) {
	c := catalog.NewCatalog()
	now := time.Now()
	c.Add(entry("app", now, true))
	c.Add(entry("app", now.Add(time.Minute), false))
	c.Add(entry("rootfs", now.Add(2*time.Minute), true))

	if got := len(c.FindByName("app")); got != 2 {
		t.Errorf("FindByName(app) = %d entries, want 2", got)
	}
	if got := len(c.FindByName("missing")); got != 0 {
		t.Errorf("FindByName(missing) = %d entries, want 0", got)
	}

	stats := c.Stats()
	if stats["entry_count"] != 3 {
		t.Errorf("entry_count = %v", stats["entry_count"])
	}
	if stats["valid_count"] != 2 || stats["invalid_count"] != 1 {
		t.Errorf("valid/invalid = %v/%v", stats["valid_count"], stats["invalid_count"])
	}
	if stats["artifact_names"] != 2 {
		t.Errorf("artifact_names = %v", stats["artifact_names"])
	}
	if stats["total_size"] != int64(3072) {
		t.Errorf("total_size = %v", stats["total_size"])
	}

	c.Clear()
	if c.Count() != 0 {
		t.Error("Clear should remove all entries")
	}
}

// ====================================================================================
// PERSISTENCE
// ====================================================================================

func TestCatalogPersistence(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), catalog.CATALOG_FILE)

		c := catalog.NewCatalog()
		e := entry("release-1", time.Now().UTC(), true)
		e.DeviceTypes = []string{"qemux86-64"}
		c.Add(e)

		if err := c.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Error("temp file should not remain after save")
		}

		loaded, err := catalog.LoadCatalog(path)
		if err != nil {
			t.Fatalf("LoadCatalog failed: %v", err)
		}
		got, err := loaded.Get(e.ID)
		if err != nil {
			t.Fatalf("entry lost: %v", err)
		}
		if got.DeviceTypes[0] != "qemux86-64" || !got.Valid {
			t.Errorf("entry mismatch after reload: %+v", got)
		}
	})

	t.Run("SaveOverwritesAtomically", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), catalog.CATALOG_FILE)
		c := catalog.NewCatalog()

		for i := 0; i < 3; i++ {
			c.Add(entry(fmt.Sprintf("r%d", i), time.Now(), true))
			if err := c.Save(path); err != nil {
				t.Fatalf("Save %d failed: %v", i, err)
			}
			loaded, err := catalog.LoadCatalog(path)
			if err != nil {
				t.Fatalf("LoadCatalog %d failed: %v", i, err)
			}
			if loaded.Count() != i+1 {
				t.Errorf("after save %d: count %d", i, loaded.Count())
			}
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.json")
		if _, err := catalog.LoadCatalog(path); err == nil {
			t.Error("expected error for missing file")
		}

		c, err := catalog.LoadOrCreate(path)
		if err != nil {
			t.Fatalf("LoadOrCreate failed: %v", err)
		}
		if c.Count() != 0 {
			t.Error("LoadOrCreate should return an empty catalog")
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrupt.json")
		os.WriteFile(path, []byte("{not json"), 0644)

		if _, err := catalog.LoadCatalog(path); err == nil {
			t.Error("expected parse error")
		}
		if _, err := catalog.LoadOrCreate(path); err == nil {
			t.Error("LoadOrCreate should not hide parse errors")
		}
	})

	t.Run("LoadWrongVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "old.json")
		os.WriteFile(path, []byte(`{"version":"0.1","entries":[]}`), 0644)

		if _, err := catalog.LoadCatalog(path); err == nil {
			t.Error("expected version error")
		}
	})
}

// ====================================================================================
// CONCURRENCY & REPORT CONVERSION
// ====================================================================================

func TestCatalogConcurrentAdd(t *testing.T) {
	c := catalog.NewCatalog()
	path := filepath.Join(t.TempDir(), catalog.CATALOG_FILE)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(entry(fmt.Sprintf("r%d", i), time.Now(), i%2 == 0))
			_ = c.Stats()
		}(i)
	}
	wg.Wait()

	if c.Count() != 20 {
		t.Errorf("count = %d, want 20", c.Count())
	}
	if err := c.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestNewEntry(t *testing.T) {
	rep := &report.Report{
		Source:       "a.mender",
		ArtifactName: "release-1",
		Format:       "mender",
		Version:      3,
		BytesRead:    4096,
		InspectedAt:  time.Now(),
		Payloads: []report.Payload{
			{Index: 0, Expected: "aa", Actual: "aa", Verified: true},
			{Index: 1, Expected: "aa", Actual: "bb", Error: "ChecksumMismatch"},
		},
	}

	e := catalog.NewEntry(rep)
	if e.ID == "" {
		t.Error("NewEntry should assign an ID")
	}
	if e.PayloadCount != 2 || e.Size != 4096 || e.Valid {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Errors) != 1 || e.Errors[0] != "payload 0001: ChecksumMismatch" {
		t.Errorf("errors = %v", e.Errors)
	}

	failed := report.Build(nil, "b.mender", types.FormatViolation("manifest", types.ReasonManifestMalformed, "bad"))
	e = catalog.NewEntry(failed)
	if len(e.Errors) != 1 {
		t.Errorf("errors = %v", e.Errors)
	}
}
