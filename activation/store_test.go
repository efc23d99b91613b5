package activation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMachineID = "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"

func fixedMachineID() string { return testMachineID }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), stateFileName)
	return NewStore(path, false, fixedMachineID, testLogger())
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := Info{
		ActivationCode:     "fd5cf09b-b8f4-495c-a4b9-8404dd965b4c",
		MachineID:          testMachineID,
		ActivatedAt:        "2024-01-01T00:00:00Z",
		CurrentActivations: 1,
		MaxActivations:     3,
		IsValid:            true,
	}
	require.NoError(t, store.Save(saved))

	loaded, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, saved, loaded)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	_, ok := store.Load()
	assert.False(t, ok, "corruption must read as no state, not an error")
}

func TestStoreLoadMachineMismatch(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Info{
		ActivationCode: "code",
		MachineID:      "0000000000000000000000000000000000000000000000000000000000000000",
		IsValid:        true,
	}))

	_, ok := store.Load()
	assert.False(t, ok, "a state file from another machine must not activate this one")
}

func TestStoreSchemaVersion(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Info{MachineID: testMachineID, IsValid: true}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, stateSchemaVersion, raw["schema_version"])
}

func TestStoreLoadsLegacyFileWithoutSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	legacy := `{
		"activation_code": "XXXX-YYYY-ZZZZ-0000",
		"machine_id": "` + testMachineID + `",
		"activated_at": "2023-06-01T12:00:00Z",
		"is_valid": true,
		"current_activations": 2,
		"max_activations": 2
	}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(legacy), 0o600))

	loaded, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "XXXX-YYYY-ZZZZ-0000", loaded.ActivationCode)
	assert.Equal(t, 2, loaded.CurrentActivations)
	assert.True(t, loaded.IsValid)
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Info{MachineID: testMachineID, IsValid: true}))

	require.NoError(t, store.Clear())
	assert.NoFileExists(t, store.Path())

	// clearing again is fine
	require.NoError(t, store.Clear())
}

func TestStoreExistenceOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	store := NewStore(path, true, fixedMachineID, testLogger())

	_, ok := store.Load()
	assert.False(t, ok)

	// Content is never inspected in this mode, even a machine mismatch.
	require.NoError(t, os.WriteFile(path, []byte(`{"machine_id":"someone-else"}`), 0o600))

	info, ok := store.Load()
	require.True(t, ok)
	assert.True(t, info.IsValid)
	assert.Empty(t, info.ActivationCode)
}

func TestStoreSaveIsAtomic(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Info{MachineID: testMachineID, IsValid: true}))

	// No temp file may survive a completed save.
	assert.NoFileExists(t, store.Path()+".tmp")
}
