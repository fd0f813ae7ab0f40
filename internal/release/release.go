// Package release resolves, downloads, verifies and extracts upstream
// application releases published as GitHub release assets.
package release

import (
	"context"
	"errors"
)

// ErrReleaseNotFound is returned when no release asset matches the expected file pattern.
var ErrReleaseNotFound = errors.New("no release asset matches the expected file pattern")

// ErrIntegrityMismatch is returned when a downloaded archive fails checksum verification.
var ErrIntegrityMismatch = errors.New("archive checksum mismatch")

// ErrUnsupportedFormat is returned when an archive has an unrecognized extension.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ErrSourceUnavailable is returned when the release source cannot be reached,
// typically due to API rate limiting.
var ErrSourceUnavailable = errors.New("release source is currently unavailable")

// Release describes a single resolvable application release.
type Release struct {
	// Tag is the upstream release tag, e.g. "v6.1.10".
	Tag string

	// ArchiveName is the file name of the matched release archive.
	ArchiveName string

	// ArchiveURL is the plain HTTP download URL, used as the fallback transport.
	ArchiveURL string

	// AssetID identifies the archive for the primary (API) transport.
	AssetID int64

	// ChecksumURL points at the sha256 sidecar file, empty when the
	// release doesn't publish one.
	ChecksumURL string
}

// Source is the capability needed from a release host.
type Source interface {
	// Resolve returns the release for the given tag, or the latest release
	// when tag is empty or "latest".
	Resolve(ctx context.Context, tag string) (*Release, error)

	// Tags returns up to limit release tags, newest first.
	Tags(ctx context.Context, limit int) ([]string, error)

	// RawFile fetches a single file from the repository at the given tag.
	RawFile(ctx context.Context, tag string, path string) ([]byte, error)

	// DownloadAsset streams a release asset to the target path using the
	// primary (API) transport.
	DownloadAsset(ctx context.Context, assetID int64, target string) error
}
