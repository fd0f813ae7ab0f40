package envfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/envfile"
)

const sample = `# Firefly III configuration
APP_ENV=production
APP_KEY=SomeRandomStringOf32CharsExactly

DB_CONNECTION=mysql
DB_HOST=127.0.0.1
DB_PASSWORD=
SITE_OWNER="mail@example.com"
TRUSTED_PROXIES=
`

func writeSample(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o640))

	return path
}

func TestLoadGet(t *testing.T) {
	t.Parallel()

	f, err := envfile.Load(writeSample(t))
	require.NoError(t, err)

	value, ok := f.Get("DB_CONNECTION")
	require.True(t, ok)
	require.Equal(t, "mysql", value)

	// Quotes are stripped.
	value, ok = f.Get("SITE_OWNER")
	require.True(t, ok)
	require.Equal(t, "mail@example.com", value)

	_, ok = f.Get("NO_SUCH_KEY")
	require.False(t, ok)
}

func TestEnsureRespectsExistingValues(t *testing.T) {
	t.Parallel()

	f, err := envfile.Load(writeSample(t))
	require.NoError(t, err)

	// Real values are left alone.
	require.False(t, f.Ensure("DB_HOST", "localhost"))

	value, _ := f.Get("DB_HOST")
	require.Equal(t, "127.0.0.1", value)

	// Placeholders and empty values are replaced.
	require.True(t, f.Ensure("APP_KEY", "base64:abcdef"))
	require.True(t, f.Ensure("DB_PASSWORD", "s3cret"))

	// A second reconciliation run changes nothing.
	require.False(t, f.Ensure("APP_KEY", "base64:other"))

	value, _ = f.Get("APP_KEY")
	require.Equal(t, "base64:abcdef", value)
}

func TestIsConfigured(t *testing.T) {
	t.Parallel()

	f, err := envfile.Load(writeSample(t))
	require.NoError(t, err)

	require.True(t, f.IsConfigured("DB_HOST"))
	require.False(t, f.IsConfigured("APP_KEY"))
	require.False(t, f.IsConfigured("DB_PASSWORD"))
	require.False(t, f.IsConfigured("NO_SUCH_KEY"))
}

func TestSavePreservesUnrelatedContent(t *testing.T) {
	t.Parallel()

	path := writeSample(t)

	f, err := envfile.Load(path)
	require.NoError(t, err)

	f.Set("DB_PASSWORD", "s3cret")
	f.Set("STATIC_CRON_TOKEN", "token1234")
	require.NoError(t, f.Save())

	body, err := os.ReadFile(path)
	require.NoError(t, err)

	// Comments, blank lines and untouched keys survive.
	require.Contains(t, string(body), "# Firefly III configuration")
	require.Contains(t, string(body), "APP_ENV=production")
	require.Contains(t, string(body), "TRUSTED_PROXIES=")
	require.Contains(t, string(body), "DB_PASSWORD=s3cret")
	require.Contains(t, string(body), "STATIC_CRON_TOKEN=token1234")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env")

	f, err := envfile.Load(path)
	require.NoError(t, err)
	require.Empty(t, f.Keys())

	f.Set("APP_URL", "http://localhost")
	require.NoError(t, f.Save())
	require.FileExists(t, path)
}

func TestValuesWithSpacesAreQuoted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env")

	f, err := envfile.Load(path)
	require.NoError(t, err)

	f.Set("APP_NAME", "Firefly III")
	require.NoError(t, f.Save())

	reloaded, err := envfile.Load(path)
	require.NoError(t, err)

	value, ok := reloaded.Get("APP_NAME")
	require.True(t, ok)
	require.Equal(t, "Firefly III", value)
}
