package curation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	layer := testLayer(t)
	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user:rt", "looks right")
	require.NoError(t, err)

	raw, err := layer.Marshal()
	require.NoError(t, err)

	reloaded, err := Unmarshal(raw)
	require.NoError(t, err)

	raw2, err := reloaded.Marshal()
	require.NoError(t, err)

	assert.True(t, bytes.Equal(raw, raw2), "serialization must be stable under re-save")
	assert.Equal(t, layer.CrucibleVersion, reloaded.CrucibleVersion)
	assert.Equal(t, len(layer.Decisions), len(reloaded.Decisions))
	assert.Equal(t, layer.Decisions[0].Status, reloaded.Decisions[0].Status)
}

func TestUnknownFieldsPreserved(t *testing.T) {
	layer := testLayer(t)
	raw, err := layer.Marshal()
	require.NoError(t, err)

	// A future version adds a top-level field.
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["review_assignments"] = json.RawMessage(`{"alice": ["sug_1"]}`)
	extended, err := json.Marshal(doc)
	require.NoError(t, err)

	reloaded, err := Unmarshal(extended)
	require.NoError(t, err)

	saved, err := reloaded.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(saved), "review_assignments")
	assert.Contains(t, string(saved), "alice")
}

func TestSortedTopLevelKeys(t *testing.T) {
	layer := testLayer(t)
	raw, err := layer.Marshal()
	require.NoError(t, err)

	var keys []string
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	require.NotEmpty(t, keys)

	for i := 1; i < len(keys); i++ {
		assert.LessOrEqual(t, keys[i-1], keys[i], "top-level keys must be sorted")
	}
}

func TestIntegrityFatalOnLoad(t *testing.T) {
	layer := testLayer(t)
	layer.Decisions = append(layer.Decisions, Decision{
		ID: "dec_001", SuggestionID: "sug_missing", Status: StatusAccepted,
	})
	raw, err := layer.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(raw)
	assert.Error(t, err, "broken referential integrity must refuse to load")
}

func TestSaveWithHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.curation.json")

	layer := testLayer(t)
	require.NoError(t, layer.SaveWithHistory(path))

	// Second save snapshots the first version.
	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user", "")
	require.NoError(t, err)
	require.NoError(t, layer.SaveWithHistory(path))

	history, err := ListHistory(path)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	snapshot, err := os.ReadFile(history[0])
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "crucible_version")
}

func TestLayerPath(t *testing.T) {
	assert.Equal(t, "data/metadata.curation.json", LayerPath("data/metadata.tsv"))
	assert.Equal(t, "test.curation.json", LayerPath("test.csv"))
}

func TestLoadMissingSourceIsReadOnlyUsable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.curation.json")

	layer := testLayer(t)
	layer.Source.Path = filepath.Join(dir, "never-existed.tsv")
	require.NoError(t, layer.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Stale, "missing source file is not staleness")
}

func TestLoadDetectsStaleSource(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "data.tsv")
	require.NoError(t, os.WriteFile(sourcePath, []byte("a\tb\n1\t2\n"), 0o644))

	layer := testLayer(t)
	layer.Source.Path = sourcePath
	layer.Source.Hash = "sha256:doesnotmatch"
	path := filepath.Join(dir, "data.curation.json")
	require.NoError(t, layer.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Stale)

	loaded.AcknowledgeStale()
	assert.False(t, loaded.Stale)
}
