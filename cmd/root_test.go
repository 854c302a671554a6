package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/pipeline"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.yml")
	body := "data_version: \"06\"\nroot_data_dir: " + root + "\nlogging:\n  development: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, root
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root, opts := newRootCmd()
	defer opts.close()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestRootRejectsUnknownPipeline(t *testing.T) {
	path, _ := writeConfig(t)

	err := execute(t, "--config", path, "--pipeline", "sculptures")
	require.ErrorIs(t, err, pipeline.ErrUnknownPipeline)
}

func TestRootRequiresPipeline(t *testing.T) {
	path, _ := writeConfig(t)

	err := execute(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pipeline is required")
}

func TestRootFailsOnMissingConfig(t *testing.T) {
	err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yml"), "--pipeline", pipeline.Wikidata)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestTagsCommandNeedsContentDB(t *testing.T) {
	path, root := writeConfig(t)

	err := execute(t, "--config", path, "tags")
	require.Error(t, err)
	assert.DirExists(t, root)
}

func TestPublishCommandPackagesArtifacts(t *testing.T) {
	path, root := writeConfig(t)
	require.NoError(t, os.MkdirAll(root, 0o750))
	for _, name := range []string{"tags_db.csv.gz", "content_db.csv.gz", "exhibitions_db.csv.gz"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "06_"+name), []byte(name), 0o600))
	}

	require.NoError(t, execute(t, "--config", path, "publish"))
	assert.FileExists(t, filepath.Join(root, "service_data.tar.gz"))
	assert.FileExists(t, filepath.Join(root, "service_data", "exhibitions_db.csv.gz"))
}
