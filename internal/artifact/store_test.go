package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/record"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "data")
		store, err := artifact.New(artifact.Config{RootDir: root, Version: "06"})
		require.NoError(t, err)
		assert.DirExists(t, root)
		assert.Equal(t, root, store.Root())
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := artifact.New(artifact.Config{Version: "06"})
		assert.Error(t, err)
	})

	t.Run("MissingVersion", func(t *testing.T) {
		_, err := artifact.New(artifact.Config{RootDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("RootIsFile", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
		_, err := artifact.New(artifact.Config{RootDir: f, Version: "06"})
		assert.Error(t, err)
	})
}

func TestNaming(t *testing.T) {
	root := t.TempDir()
	store, err := artifact.New(artifact.Config{RootDir: root, Version: "06"})
	require.NoError(t, err)

	assert.Equal(t, "06_artists_info.csv", store.FileName("artists_info.csv"))

	p, err := store.Path("artists_info.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "06_artists_info.csv"), p)

	dir, err := store.BatchDir("artists_artworks")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, artifact.BatchesDir, "06_artists_artworks"), dir)

	_, err = store.Path("../../etc/passwd")
	assert.Error(t, err)
	assert.Equal(t, filepath.Join(root, "service_data"), store.ServiceDir())
}

func TestReadWriteExists(t *testing.T) {
	store, err := artifact.New(artifact.Config{RootDir: t.TempDir(), Version: "01"})
	require.NoError(t, err)

	ok, err := store.Exists("tags_db.csv.gz")
	require.NoError(t, err)
	assert.False(t, ok)

	tbl := record.NewTable("tag", "cnt")
	row := record.New()
	row.SetString("tag", "impressionism")
	row.Set("cnt", record.Int(12))
	tbl.Append(row)

	_, err = store.Write("tags_db.csv.gz", tbl)
	require.NoError(t, err)

	ok, err = store.Exists("tags_db.csv.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Read("tags_db.csv.gz")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "12", got.Rows()[0].GetString("cnt"))
}
