package synctable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat"
)

func writeTable(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "synctable.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndFindSlaveSyncInfo(t *testing.T) {
	path := writeTable(t, `
[1:2:0:default]
out_size = 4
in_size = 4
sm0 = 0x1000,4,out
sm1 = 0x1100,4,in
`)
	tbl, err := Load(path)
	require.NoError(t, err)

	info, err := tbl.FindSlaveSyncInfo(1, 2, 0, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.OutputSize)
	assert.EqualValues(t, 4, info.InputSize)
	require.Len(t, info.SyncManagers, 2)
	assert.False(t, info.SyncManagers[0].IsInput)
	assert.True(t, info.SyncManagers[1].IsInput)
}

func TestFindSlaveSyncInfoMissingReturnsErrNotFound(t *testing.T) {
	path := writeTable(t, `
[1:2:0:default]
out_size = 4
in_size = 4
`)
	tbl, err := Load(path)
	require.NoError(t, err)

	_, err = tbl.FindSlaveSyncInfo(9, 9, 9, "")
	assert.ErrorIs(t, err, ethercat.ErrNotFound)
}
