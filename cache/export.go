package cache

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ZaguanLabs/gomtl"
)

// SnapshotVersion is written into every export.
const SnapshotVersion = "1"

// Snapshot is the JSON document produced by Exporter.
type Snapshot struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Entries    []SnapshotEntry   `json:"entries"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SnapshotEntry is one cached translation.
type SnapshotEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Exporter writes cache snapshots.
type Exporter struct {
	source Enumerable
	now    func() time.Time
}

// NewExporter creates an Exporter reading from source.
func NewExporter(source Enumerable) *Exporter {
	return &Exporter{source: source, now: time.Now}
}

// Export writes a snapshot of the live entries to w, sorted by key.
func (e *Exporter) Export(w io.Writer, metadata map[string]string) error {
	entries, err := e.source.Entries()
	if err != nil {
		return err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: e.now().UTC(),
		Entries:    make([]SnapshotEntry, 0, len(entries)),
		Metadata:   metadata,
	}
	for k, v := range entries {
		snap.Entries = append(snap.Entries, SnapshotEntry{Key: k, Value: v})
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Key < snap.Entries[j].Key
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return &gomtl.CacheError{Message: "encoding snapshot", Cause: err}
	}
	return nil
}

// ExportToFile writes a snapshot to path.
func (e *Exporter) ExportToFile(path string, metadata map[string]string) (err error) {
	f, err := os.Create(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return &gomtl.CacheError{Message: "creating snapshot file", Cause: err}
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = &gomtl.CacheError{Message: "closing snapshot file", Cause: cerr}
		}
	}()
	return e.Export(f, metadata)
}

// ImportResult reports what Import loaded.
type ImportResult struct {
	Version  string
	Metadata map[string]string
	Imported int
	Skipped  int // entries with an empty key or value
	Failed   int
}

// Importer loads snapshots into a cache.
type Importer struct {
	target TranslationCache
}

// NewImporter creates an Importer writing to target.
func NewImporter(target TranslationCache) *Importer {
	return &Importer{target: target}
}

// Import reads a snapshot from r. Entries that fail to store are counted, not
// fatal.
func (i *Importer) Import(r io.Reader) (*ImportResult, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, &gomtl.CacheError{Message: "decoding snapshot", Cause: err}
	}
	if major, _, _ := strings.Cut(snap.Version, "."); major != SnapshotVersion {
		return nil, &gomtl.CacheError{Message: "unsupported snapshot version " + snap.Version}
	}

	result := &ImportResult{Version: snap.Version, Metadata: snap.Metadata}
	for _, entry := range snap.Entries {
		if entry.Key == "" || entry.Value == "" {
			result.Skipped++
			continue
		}
		if err := i.target.Set(entry.Key, entry.Value); err != nil {
			result.Failed++
			continue
		}
		result.Imported++
	}
	return result, nil
}

// ImportFromFile reads a snapshot from path.
func (i *Importer) ImportFromFile(path string) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return nil, &gomtl.CacheError{Message: "opening snapshot file", Cause: err}
	}
	defer f.Close()
	return i.Import(f)
}
