package contracts

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTzst(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serveArchive(t *testing.T, archive []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+ArchiveName(3) {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDownloader_Fetch(t *testing.T) {
	archive := buildTzst(t, map[string]string{
		"l1/AddressManager.json": `{"contractName":"AddressManager","bytecode":"0x60","deployedBytecode":"0x61","abi":[]}`,
		"../escape.txt":          "nope",
	})
	srv, hits := serveArchive(t, archive)
	sum := fmt.Sprintf("%x", sha256.Sum256(archive))
	cache := t.TempDir()

	d := NewDownloader(srv.URL, cache, map[string]string{"v3": sum}, nil)
	dir, err := d.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "v3"), dir)

	set, err := LoadDir(filepath.Join(dir, "l1"))
	require.NoError(t, err)
	assert.Contains(t, set, AddressManager)
	assert.NoFileExists(t, filepath.Join(cache, "escape.txt"))

	// Second fetch is served from the cache.
	_, err = d.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloader_ChecksumMismatch(t *testing.T) {
	srv, _ := serveArchive(t, buildTzst(t, map[string]string{"a.json": "{}"}))
	cache := t.TempDir()

	d := NewDownloader(srv.URL, cache, map[string]string{"v3": "00"}, nil)
	_, err := d.Fetch(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	_, statErr := os.Stat(filepath.Join(cache, "v3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloader_NoChecksumConfigured(t *testing.T) {
	srv, _ := serveArchive(t, buildTzst(t, map[string]string{"a.json": "{}"}))

	d := NewDownloader(srv.URL, t.TempDir(), nil, nil)
	_, err := d.Fetch(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no checksum configured")
}

func TestDownloader_NotFound(t *testing.T) {
	srv, _ := serveArchive(t, nil)

	d := NewDownloader(srv.URL, t.TempDir(), map[string]string{"v4": ""}, nil)
	_, err := d.Fetch(context.Background(), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
