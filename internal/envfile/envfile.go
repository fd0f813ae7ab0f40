// Package envfile provides a parsed, order-preserving representation of the
// key=value environment files the applications read their configuration from.
// Files are reconciled in place rather than replaced wholesale, so keys this
// tool doesn't know about survive untouched.
package envfile

import (
	"errors"
	"os"
	"strings"
)

// Placeholder values shipped in the upstream .env.example files. A key
// holding one of these is treated the same as a missing key.
var placeholders = []string{
	"",
	"SomeRandomStringOf32CharsExactly",
	"secret_firefly_iii_access_token",
	"ChangeMe",
}

type line struct {
	key string
	raw string
}

// File is an in-memory environment file.
type File struct {
	path  string
	lines []line
}

// Load parses the environment file at path. A missing file yields an empty
// File that will be created on Save.
func Load(path string) (*File, error) {
	f := &File{path: path}

	body, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}

		return nil, err
	}

	for _, raw := range strings.Split(strings.TrimSuffix(string(body), "\n"), "\n") {
		entry := line{raw: raw}

		trimmed := strings.TrimSpace(raw)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			key, _, found := strings.Cut(trimmed, "=")
			if found {
				entry.key = strings.TrimSpace(key)
			}
		}

		f.lines = append(f.lines, entry)
	}

	return f, nil
}

// Save serializes the file back to disk with restrictive permissions, since
// it holds database credentials and the application key.
func (f *File) Save() error {
	if f.path == "" {
		return errors.New("environment file has no path")
	}

	var sb strings.Builder

	for _, entry := range f.lines {
		sb.WriteString(entry.raw)
		sb.WriteString("\n")
	}

	return os.WriteFile(f.path, []byte(sb.String()), 0o640) //nolint:gosec
}

// Get returns the value for key, with surrounding quotes stripped.
func (f *File) Get(key string) (string, bool) {
	for _, entry := range f.lines {
		if entry.key != key {
			continue
		}

		_, value, _ := strings.Cut(entry.raw, "=")

		return unquote(strings.TrimSpace(value)), true
	}

	return "", false
}

// Set writes key=value, replacing an existing assignment or appending a new one.
func (f *File) Set(key string, value string) {
	raw := key + "=" + quoteIfNeeded(value)

	for i, entry := range f.lines {
		if entry.key == key {
			f.lines[i].raw = raw

			return
		}
	}

	f.lines = append(f.lines, line{key: key, raw: raw})
}

// Ensure sets key=value only when the key is missing or still holds an
// upstream placeholder. It reports whether a write happened.
func (f *File) Ensure(key string, value string) bool {
	current, ok := f.Get(key)
	if ok && !isPlaceholder(current) {
		return false
	}

	f.Set(key, value)

	return true
}

// IsConfigured reports whether the key holds a real value rather than being
// absent or an upstream placeholder.
func (f *File) IsConfigured(key string) bool {
	current, ok := f.Get(key)

	return ok && !isPlaceholder(current)
}

// Keys returns the keys present in the file, in order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.lines))

	for _, entry := range f.lines {
		if entry.key != "" {
			keys = append(keys, entry.key)
		}
	}

	return keys
}

func isPlaceholder(value string) bool {
	for _, placeholder := range placeholders {
		if value == placeholder {
			return true
		}
	}

	return false
}

func unquote(value string) string {
	if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"' || value[0] == '\'' && value[len(value)-1] == '\'') {
		return value[1 : len(value)-1]
	}

	return value
}

func quoteIfNeeded(value string) string {
	if strings.ContainsAny(value, " #\t") {
		return "\"" + value + "\""
	}

	return value
}
