package release

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const downloadAttempts = 3

// Acquirer downloads and verifies release archives.
type Acquirer struct {
	source Source
	client *http.Client
}

// NewAcquirer returns an Acquirer for the given source.
func NewAcquirer(source Source) *Acquirer {
	return &Acquirer{
		source: source,
		client: &http.Client{Timeout: 15 * time.Minute},
	}
}

// Acquire downloads the release archive into destDir, verifying the sha256
// checksum when the release publishes one. It returns the local archive path.
func (a *Acquirer) Acquire(ctx context.Context, rel *Release, destDir string) (string, error) {
	err := os.MkdirAll(destDir, 0o700)
	if err != nil {
		return "", err
	}

	target := filepath.Join(destDir, rel.ArchiveName)

	// Primary transport is the release API; fall back to the plain
	// download URL when it fails.
	err = a.withRetries(ctx, func() error {
		return a.source.DownloadAsset(ctx, rel.AssetID, target)
	})
	if err != nil {
		slog.Warn("Primary download transport failed, falling back to direct download", "archive", rel.ArchiveName, "error", err.Error())

		err = a.withRetries(ctx, func() error {
			return a.fetchURL(ctx, rel.ArchiveURL, target)
		})
		if err != nil {
			return "", errors.New("unable to download " + rel.ArchiveName + ": " + err.Error())
		}
	}

	// Verify the archive if a checksum is advertised; never install
	// unverified content when verification was possible.
	if rel.ChecksumURL == "" {
		slog.Warn("Release doesn't publish a checksum, proceeding without verification", "archive", rel.ArchiveName)

		return target, nil
	}

	expected, err := a.fetchChecksum(ctx, rel.ChecksumURL)
	if err != nil {
		return "", errors.New("unable to fetch checksum: " + err.Error())
	}

	actual, err := fileSHA256(target)
	if err != nil {
		return "", err
	}

	if actual != expected {
		_ = os.Remove(target)

		return "", ErrIntegrityMismatch
	}

	slog.Info("Archive checksum verified", "archive", rel.ArchiveName)

	return target, nil
}

// withRetries attempts fn up to downloadAttempts times with a short pause in between.
func (a *Acquirer) withRetries(ctx context.Context, fn func() error) error {
	var err error

	for range downloadAttempts {
		err = fn()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return err
}

func (a *Acquirer) fetchURL(ctx context.Context, url string, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.New("unable to create http request: " + err.Error())
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.New("unable to get http response: " + err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("unexpected HTTP status: " + resp.Status)
	}

	// #nosec G304
	fd, err := os.Create(target)
	if err != nil {
		return err
	}

	defer fd.Close()

	// Read in chunks to avoid excessive memory consumption.
	for {
		_, err = io.CopyN(fd, resp.Body, 4*1024*1024)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}
	}

	return nil
}

// fetchChecksum downloads a sha256 sidecar file and returns the hex digest
// from its first field.
func (a *Acquirer) fetchChecksum(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New("unexpected HTTP status: " + resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", errors.New("empty checksum file")
	}

	return strings.ToLower(fields[0]), nil
}

func fileSHA256(path string) (string, error) {
	// #nosec G304
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer fd.Close()

	h := sha256.New()

	_, err = io.Copy(h, fd)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
