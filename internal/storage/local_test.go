package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.UploadObject(ctx, "reports/a.csv", []byte("sku\nA\n")))
	require.NoError(t, s.UploadObject(ctx, "reports/b.csv", []byte("sku\n")))
	require.NoError(t, s.UploadObject(ctx, "other/c.csv", []byte("x")))

	objects, err := s.ListObjects(ctx, "reports/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "reports/a.csv", objects[0].Key)
	assert.Equal(t, int64(6), objects[0].Size)

	dest := filepath.Join(t.TempDir(), "out", "a.csv")
	require.NoError(t, s.DownloadObject(ctx, "reports/a.csv", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "sku\nA\n", string(data))
}

func TestLocalStorage_KeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.UploadObject(context.Background(), "../../escape.csv", []byte("x")))

	_, err = os.Stat(filepath.Join(root, "escape.csv"))
	assert.NoError(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("reports/x.CSV"))
	assert.Equal(t, "application/octet-stream", contentType("reports/x"))
}
