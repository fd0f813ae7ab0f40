// Package compat resolves PHP runtime compatibility between application
// releases and the versions a host can actually provide.
package compat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/0ldeuboi/firefly-sub000/internal/release"
	"github.com/0ldeuboi/firefly-sub000/internal/version"
)

// ErrNoCompatibleRelease is returned when no release within the scan window
// is satisfied by the current runtime.
var ErrNoCompatibleRelease = errors.New("no release compatible with the current runtime")

// Choice is the result of a release compatibility scan.
type Choice struct {
	// Tag is the selected release tag.
	Tag string

	// Caution is set when the release's runtime floor couldn't be
	// determined and the release was accepted anyway.
	Caution bool
}

var versionRegex = regexp.MustCompile(`\d+(\.\d+)*`)

// FindCompatibleRuntime selects a runtime version satisfying the given
// minimum from the list of available versions. An exact major.minor match is
// preferred; otherwise the lowest satisfying version wins, since package
// repositories typically expose a single patch level per minor line and the
// lowest satisfying line avoids unnecessary repository reconfiguration.
func FindCompatibleRuntime(minVersion string, available []string) (string, bool) {
	want := version.MajorMinor(minVersion)

	for _, candidate := range available {
		if version.MajorMinor(candidate) != want {
			continue
		}

		ok, err := version.Compare(candidate, ">=", minVersion)
		if err == nil && ok {
			return candidate, true
		}
	}

	sorted := make([]string, len(available))
	copy(sorted, available)

	sort.Slice(sorted, func(i, j int) bool {
		less, err := version.Compare(sorted[i], "<", sorted[j])

		return err == nil && less
	})

	for _, candidate := range sorted {
		ok, err := version.Compare(candidate, ">=", minVersion)
		if err == nil && ok {
			return candidate, true
		}
	}

	return "", false
}

// FindCompatibleRelease scans releases newest-first and returns the first one
// whose runtime floor is satisfied by currentRuntime. Releases whose floor
// cannot be fetched or parsed are skipped with a warning rather than treated
// as compatible or incompatible. If the newest release's floor is unknown and
// nothing else matched, it is accepted with a caution flag: most releases
// remain compatible in practice and blocking on manifest drift helps nobody.
func FindCompatibleRelease(ctx context.Context, src release.Source, currentRuntime string, maxToCheck int) (*Choice, error) {
	tags, err := src.Tags(ctx, maxToCheck)
	if err != nil {
		return nil, err
	}

	if len(tags) == 0 {
		return nil, ErrNoCompatibleRelease
	}

	latestUnknown := false

	for i, tag := range tags {
		floor, err := MinimumRuntime(ctx, src, tag)
		if err != nil {
			slog.Warn("Unable to determine runtime requirement, skipping release", "tag", tag, "error", err.Error())

			if i == 0 {
				latestUnknown = true
			}

			continue
		}

		ok, err := version.Compare(currentRuntime, ">=", floor)
		if err != nil {
			slog.Warn("Unparsable runtime requirement, skipping release", "tag", tag, "requirement", floor)

			continue
		}

		if ok {
			return &Choice{Tag: tag}, nil
		}
	}

	if latestUnknown {
		slog.Warn("Runtime requirement of the latest release is unknown, proceeding with caution", "tag", tags[0])

		return &Choice{Tag: tags[0], Caution: true}, nil
	}

	return nil, ErrNoCompatibleRelease
}

// MinimumRuntime fetches a release's composer manifest and extracts the
// minimum PHP version it declares.
func MinimumRuntime(ctx context.Context, src release.Source, tag string) (string, error) {
	body, err := src.RawFile(ctx, tag, "composer.json")
	if err != nil {
		return "", err
	}

	manifest := struct {
		Require map[string]string `json:"require"`
	}{}

	err = json.Unmarshal(body, &manifest)
	if err != nil {
		return "", err
	}

	constraint, ok := manifest.Require["php"]
	if !ok {
		return "", errors.New("manifest declares no php requirement")
	}

	// Constraints look like ">=8.3", "^8.2.5" or "^8.2.5|^8.3"; the first
	// version number is the floor.
	floor := versionRegex.FindString(constraint)
	if floor == "" {
		return "", errors.New("unparsable php requirement " + strings.TrimSpace(constraint))
	}

	return version.Normalize(floor), nil
}
