package contracts

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ArchiveName is the file name of the artifact archive of a release.
func ArchiveName(version uint64) string {
	return fmt.Sprintf("artifacts_v%d.tzst", version)
}

// Downloader fetches and extracts versioned artifact archives
// (zstd-compressed tar). Every archive must have a SHA256 checksum
// configured under "v<version>".
type Downloader struct {
	baseURL   string
	cacheDir  string
	checksums map[string]string
	client    *http.Client
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewDownloader creates a new artifact downloader.
func NewDownloader(baseURL, cacheDir string, checksums map[string]string, logger *slog.Logger) *Downloader {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		baseURL:   strings.TrimRight(baseURL, "/"),
		cacheDir:  cacheDir,
		checksums: checksums,
		client:    http.DefaultClient,
		logger:    logger,
	}
}

// Fetch returns the directory holding the extracted artifacts of version,
// downloading them on first use.
func (d *Downloader) Fetch(ctx context.Context, version uint64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	extractDir := filepath.Join(d.cacheDir, fmt.Sprintf("v%d", version))
	marker := filepath.Join(extractDir, ".complete")
	if _, err := os.Stat(marker); err == nil {
		return extractDir, nil
	}

	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	name := ArchiveName(version)
	url := d.baseURL + "/" + name
	archive := filepath.Join(d.cacheDir, name)
	if err := d.downloadFile(ctx, url, archive); err != nil {
		return "", fmt.Errorf("download artifacts: %w", err)
	}
	defer os.Remove(archive)

	if err := d.verifyChecksum(archive, version); err != nil {
		return "", fmt.Errorf("artifact integrity check failed: %w", err)
	}

	_ = os.RemoveAll(extractDir)
	if err := extractTzst(archive, extractDir); err != nil {
		_ = os.RemoveAll(extractDir)
		return "", fmt.Errorf("extract artifacts: %w", err)
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return "", fmt.Errorf("mark extraction: %w", err)
	}

	d.logger.Info("artifacts extracted",
		slog.Uint64("version", version),
		slog.String("dir", extractDir),
	)
	return extractDir, nil
}

// verifyChecksum calculates SHA256 of the file and compares with the expected checksum.
// An empty configured checksum skips verification with a warning.
func (d *Downloader) verifyChecksum(filePath string, version uint64) error {
	key := fmt.Sprintf("v%d", version)
	expected, ok := d.checksums[key]
	if !ok {
		return fmt.Errorf("no checksum configured for artifact version %s", key)
	}
	if expected == "" {
		d.logger.Warn("no checksum configured for artifact version, skipping integrity verification",
			slog.String("version", key))
		return nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}
	actual := fmt.Sprintf("%x", h.Sum(nil))
	if actual != strings.TrimPrefix(strings.ToLower(expected), "sha256:") {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// downloadFile downloads a file from URL to the given path.
func (d *Downloader) downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d from %s", resp.StatusCode, url)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, err = io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// extractTzst extracts a .tzst file to destDir. Entries escaping destDir are
// skipped; only directories and regular files are materialized.
func extractTzst(tzstPath, destDir string) error {
	f, err := os.Open(tzstPath)
	if err != nil {
		return fmt.Errorf("open tzst file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target := filepath.Join(absDest, filepath.Clean(header.Name))
		if !strings.HasPrefix(target, absDest+string(os.PathSeparator)) {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent directory for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			out.Close()
		}
	}
	return nil
}
