package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestUploader(t *testing.T, handler http.Handler) *GCSUploader {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	u, err := NewGCSUploader(client, "test-bucket")
	require.NoError(t, err)
	return u
}

func TestGCSUploaderPutObject(t *testing.T) {
	t.Parallel()

	object := "bundles/01/service_data.tar.gz"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, object, r.URL.Query().Get("name"))
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "bundle-bytes")

		_, _ = fmt.Fprintln(w, `{ "name": "`+object+`", "bucket": "test-bucket" }`)
	})

	uri, err := newTestUploader(t, handler).PutObject(context.Background(), object, "application/gzip", strings.NewReader("bundle-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+object, uri)
}

func TestGCSUploaderErrors(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	u := newTestUploader(t, handler)

	_, err := u.PutObject(context.Background(), "bundle", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = u.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = NewGCSUploader(nil, "bucket")
	require.Error(t, err)
}
