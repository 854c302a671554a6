package publish

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/artifact"
	"github.com/JakeFAU/artharvest/internal/hash/sha256"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingUploader struct {
	path        string
	contentType string
	body        []byte
	err         error
}

func (u *recordingUploader) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.path, u.contentType, u.body = path, contentType, body
	return "gs://bucket/" + path, nil
}

type recordingNotifier struct {
	payloads []any
}

func (n *recordingNotifier) Publish(_ context.Context, payload any) (string, error) {
	n.payloads = append(n.payloads, payload)
	return "msg-1", nil
}

var artifacts = []string{"tags_db.csv.gz", "content_db.csv.gz"}

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.New(artifact.Config{RootDir: t.TempDir(), Version: "01"})
	require.NoError(t, err)
	return store
}

func writeArtifact(t *testing.T, store *artifact.Store, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(store.MustPath(name), []byte(body), 0o600))
}

func newPublisher(t *testing.T, store *artifact.Store, opts ...Option) *Publisher {
	t.Helper()
	clock := fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p, err := New(store, sha256.New(), clock, Config{Artifacts: artifacts, Prefix: "bundles"}, nil, opts...)
	require.NoError(t, err)
	return p
}

func archiveEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	out := map[string]string{}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(body)
	}
	return out
}

func TestPublishCopiesAndPackages(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeArtifact(t, store, "tags_db.csv.gz", "tags-v1")
	writeArtifact(t, store, "content_db.csv.gz", "content-v1")

	m, err := newPublisher(t, store).Publish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "01", m.Version)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "content_db.csv.gz", m.Files[0].Name)
	assert.Equal(t, "tags_db.csv.gz", m.Files[1].Name)
	assert.Empty(t, m.Files[1].Superseded)
	assert.Equal(t, int64(len("tags-v1")), m.Files[1].Bytes)
	assert.Len(t, m.Files[1].SHA256, 64)
	assert.Empty(t, m.Location)

	copied, err := os.ReadFile(filepath.Join(store.ServiceDir(), "tags_db.csv.gz"))
	require.NoError(t, err)
	assert.Equal(t, "tags-v1", string(copied))

	entries := archiveEntries(t, filepath.Join(store.Root(), ArchiveName))
	assert.Equal(t, "tags-v1", entries["service_data/tags_db.csv.gz"])
	assert.Equal(t, "content-v1", entries["service_data/content_db.csv.gz"])
	require.Contains(t, entries, "service_data/"+ManifestName)

	var stored Manifest
	require.NoError(t, json.Unmarshal([]byte(entries["service_data/"+ManifestName]), &stored))
	assert.Equal(t, m.Files, stored.Files)
}

func TestPublishKeepsSupersededCopy(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeArtifact(t, store, "tags_db.csv.gz", "tags-v1")
	writeArtifact(t, store, "content_db.csv.gz", "content-v1")
	p := newPublisher(t, store)

	first, err := p.Publish(context.Background())
	require.NoError(t, err)
	oldSum := first.Files[1].SHA256

	writeArtifact(t, store, "tags_db.csv.gz", "tags-v2")
	second, err := p.Publish(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.Files[0].Superseded, "unchanged content is not renamed")
	kept := oldSum[:12] + "_tags_db.csv.gz"
	assert.Equal(t, kept, second.Files[1].Superseded)

	old, err := os.ReadFile(filepath.Join(store.ServiceDir(), kept))
	require.NoError(t, err)
	assert.Equal(t, "tags-v1", string(old))
	current, err := os.ReadFile(filepath.Join(store.ServiceDir(), "tags_db.csv.gz"))
	require.NoError(t, err)
	assert.Equal(t, "tags-v2", string(current))

	entries := archiveEntries(t, filepath.Join(store.Root(), ArchiveName))
	assert.Equal(t, "tags-v1", entries["service_data/"+kept])
}

func TestPublishMissingArtifact(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeArtifact(t, store, "tags_db.csv.gz", "tags-v1")

	_, err := newPublisher(t, store).Publish(context.Background())
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "01_content_db.csv.gz")
}

func TestPublishUploadsAndNotifies(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeArtifact(t, store, "tags_db.csv.gz", "tags-v1")
	writeArtifact(t, store, "content_db.csv.gz", "content-v1")
	up := &recordingUploader{}
	note := &recordingNotifier{}

	m, err := newPublisher(t, store, WithUploader(up), WithNotifier(note)).Publish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bundles/01/"+ArchiveName, up.path)
	assert.Equal(t, "application/gzip", up.contentType)
	onDisk, err := os.ReadFile(filepath.Join(store.Root(), ArchiveName))
	require.NoError(t, err)
	assert.Equal(t, onDisk, up.body)

	assert.Equal(t, "gs://bucket/bundles/01/"+ArchiveName, m.Location)
	assert.Equal(t, "msg-1", m.MessageID)
	require.Len(t, note.payloads, 1)
	announced, ok := note.payloads[0].(Manifest)
	require.True(t, ok)
	assert.Equal(t, m.Location, announced.Location)
}

func TestPublishUploadFailure(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeArtifact(t, store, "tags_db.csv.gz", "tags-v1")
	writeArtifact(t, store, "content_db.csv.gz", "content-v1")
	note := &recordingNotifier{}

	_, err := newPublisher(t, store,
		WithUploader(&recordingUploader{err: errors.New("denied")}),
		WithNotifier(note)).Publish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload archive")
	assert.Empty(t, note.payloads)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	clock := fixedClock{}
	_, err := New(nil, sha256.New(), clock, Config{Artifacts: artifacts}, nil)
	require.Error(t, err)
	_, err = New(store, nil, clock, Config{Artifacts: artifacts}, nil)
	require.Error(t, err)
	_, err = New(store, sha256.New(), clock, Config{}, nil)
	require.Error(t, err)
}
