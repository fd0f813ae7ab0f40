// Package version implements comparison of dotted version strings as used
// by PHP and the Firefly III release tags.
package version

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidOperator is returned when an unknown comparison operator is provided.
var ErrInvalidOperator = errors.New("invalid comparison operator")

// ErrInvalidVersion is returned when a version string contains non-numeric segments.
var ErrInvalidVersion = errors.New("invalid version string")

// Normalize pads a dotted version string with zeros to exactly three segments.
// Anything beyond the third segment is dropped.
func Normalize(v string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")

	for len(segments) < 3 {
		segments = append(segments, "0")
	}

	return strings.Join(segments[:3], ".")
}

// Compare evaluates `a op b` for dot-separated numeric versions. Missing
// segments are padded with zeros prior to comparison. The patch level is
// assumed to stay below 100.
func Compare(a string, op string, b string) (bool, error) {
	aWeight, err := weight(a)
	if err != nil {
		return false, err
	}

	bWeight, err := weight(b)
	if err != nil {
		return false, err
	}

	switch op {
	case ">=":
		return aWeight >= bWeight, nil
	case ">":
		return aWeight > bWeight, nil
	case "<=":
		return aWeight <= bWeight, nil
	case "<":
		return aWeight < bWeight, nil
	case "=":
		return aWeight == bWeight, nil
	default:
		return false, ErrInvalidOperator
	}
}

// MajorMinor returns the first two segments of a version string.
func MajorMinor(v string) string {
	segments := strings.SplitN(Normalize(v), ".", 3)

	return segments[0] + "." + segments[1]
}

// weight converts a normalized version into a single comparable integer.
func weight(v string) (int, error) {
	segments := strings.Split(Normalize(v), ".")

	total := 0
	for i, segment := range segments {
		value, err := strconv.Atoi(segment)
		if err != nil || value < 0 {
			return 0, ErrInvalidVersion
		}

		switch i {
		case 0:
			total += value * 10000
		case 1:
			total += value * 100
		case 2:
			total += value
		}
	}

	return total, nil
}
