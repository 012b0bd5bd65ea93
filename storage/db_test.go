package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackendsReportMissingKeys(t *testing.T) {
	level, err := NewLevelDBWithOptions(t.TempDir(), LevelDBOptions{CacheMB: 8, OpenFiles: 16})
	require.NoError(t, err)
	defer level.Close()

	mem := NewMemDB()
	defer mem.Close()

	for name, db := range map[string]Database{"memory": mem, "leveldb": level} {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			has, err := db.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, has)

			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
			require.NotNil(t, db.TrieDB())
		})
	}
}
