package curation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/internal"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

// knownFields are the layer's own top-level keys; everything else found in a
// document is preserved verbatim and re-emitted on save.
var knownFields = map[string]struct{}{
	"crucible_version": {},
	"created_at":       {},
	"updated_at":       {},
	"source":           {},
	"context":          {},
	"schema":           {},
	"observations":     {},
	"suggestions":      {},
	"decisions":        {},
	"summary":          {},
}

// Marshal renders the layer as a JSON document with sorted top-level keys.
// Arrays keep insertion order; unknown fields captured at load are
// re-emitted.
func (l *Layer) Marshal() ([]byte, error) {
	doc := map[string]json.RawMessage{}

	put := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.Persistence(fmt.Sprintf("encode %s", key), err)
		}
		doc[key] = raw
		return nil
	}

	fields := []struct {
		key   string
		value interface{}
	}{
		{"crucible_version", l.CrucibleVersion},
		{"created_at", l.CreatedAt},
		{"updated_at", l.UpdatedAt},
		{"source", l.Source},
		{"context", l.Context},
		{"schema", l.Schema},
		{"observations", l.Observations},
		{"suggestions", l.Suggestions},
		{"decisions", l.Decisions},
		{"summary", l.Summary},
	}
	for _, f := range fields {
		if err := put(f.key, f.value); err != nil {
			return nil, err
		}
	}
	for key, raw := range l.Extra {
		if _, known := knownFields[key]; !known {
			doc[key] = raw
		}
	}

	// Map marshaling sorts keys, giving the sorted top-level ordering the
	// format requires.
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Persistence("encode curation layer", err)
	}
	return append(raw, '\n'), nil
}

// Save writes the layer to path, creating parent directories as needed.
func (l *Layer) Save(path string) error {
	raw, err := l.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Persistence(fmt.Sprintf("create directory %s", dir), err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Persistence(fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// SaveWithHistory snapshots the existing file into a .history directory
// (named by its updated_at timestamp) before writing the new version.
func (l *Layer) SaveWithHistory(path string) error {
	if _, err := os.Stat(path); err == nil {
		existing, err := os.ReadFile(path)
		if err != nil {
			return errors.Persistence(fmt.Sprintf("read existing %s", path), err)
		}
		stamp := gjson.GetBytes(existing, "updated_at").String()
		if stamp == "" {
			stamp = "unknown"
		}
		stamp = strings.NewReplacer(":", "-", "T", "T").Replace(stamp)
		dir := historyDirectory(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Persistence(fmt.Sprintf("create history directory %s", dir), err)
		}
		snapshot := filepath.Join(dir, stamp+".json")
		if err := os.WriteFile(snapshot, existing, 0o644); err != nil {
			return errors.Persistence(fmt.Sprintf("write history snapshot %s", snapshot), err)
		}
	}
	return l.Save(path)
}

// ListHistory returns historical snapshot paths, newest first.
func ListHistory(path string) ([]string, error) {
	dir := historyDirectory(path)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Persistence(fmt.Sprintf("read history directory %s", dir), err)
	}
	var paths []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Load reads and verifies a layer document. Broken referential integrity is
// fatal. When the source file exists, its hash is recomputed: a mismatch
// marks the layer stale (a recoverable warning); a missing file leaves the
// layer usable read-only.
func Load(path string) (*Layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Persistence(fmt.Sprintf("open %s", path), err)
	}
	layer, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}

	if currentHash := input.HashFile(layer.Source.Path); currentHash != "" && currentHash != layer.Source.Hash {
		layer.Stale = true
		internal.DefaultLogger.Warn(
			"source %s has changed since analysis (layer hash %s); apply is disabled until acknowledged or re-analyzed",
			layer.Source.Path, layer.Source.Hash)
	}
	return layer, nil
}

// Unmarshal parses a layer document, preserving unknown top-level fields.
func Unmarshal(raw []byte) (*Layer, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Persistence("parse curation layer", err)
	}

	layer := &Layer{}
	decode := func(key string, out interface{}) error {
		field, ok := doc[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(field, out); err != nil {
			return errors.Persistence(fmt.Sprintf("parse field %s", key), err)
		}
		return nil
	}

	steps := []struct {
		key string
		out interface{}
	}{
		{"crucible_version", &layer.CrucibleVersion},
		{"created_at", &layer.CreatedAt},
		{"updated_at", &layer.UpdatedAt},
		{"source", &layer.Source},
		{"context", &layer.Context},
		{"schema", &layer.Schema},
		{"observations", &layer.Observations},
		{"suggestions", &layer.Suggestions},
		{"decisions", &layer.Decisions},
		{"summary", &layer.Summary},
	}
	for _, s := range steps {
		if err := decode(s.key, s.out); err != nil {
			return nil, err
		}
	}

	for key, raw := range doc {
		if _, known := knownFields[key]; !known {
			if layer.Extra == nil {
				layer.Extra = map[string]json.RawMessage{}
			}
			layer.Extra[key] = raw
		}
	}

	if layer.Observations == nil {
		layer.Observations = []validation.Observation{}
	}
	if layer.Suggestions == nil {
		layer.Suggestions = []suggestion.Suggestion{}
	}
	if layer.Decisions == nil {
		layer.Decisions = []Decision{}
	}

	if err := layer.ValidateIntegrity(); err != nil {
		return nil, err
	}
	return layer, nil
}

// PeekSourceHash extracts source.hash from a layer file without a full
// decode.
func PeekSourceHash(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(raw, "source.hash").String()
}

// LayerPath derives the default curation-layer path for a data file:
// data/metadata.tsv -> data/metadata.curation.json.
func LayerPath(dataPath string) string {
	ext := filepath.Ext(dataPath)
	stem := strings.TrimSuffix(filepath.Base(dataPath), ext)
	return filepath.Join(filepath.Dir(dataPath), stem+".curation.json")
}

func historyDirectory(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(filepath.Dir(path), stem+".history")
}
