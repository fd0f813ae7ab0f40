package vault_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/vault"
)

func TestGenerateFillsMissingValues(t *testing.T) {
	t.Parallel()

	creds, err := vault.Generate(vault.Credentials{})
	require.NoError(t, err)

	require.Equal(t, "firefly", creds.DBName)
	require.Equal(t, "firefly", creds.DBUser)
	require.Len(t, creds.DBPass, 24)
	require.True(t, strings.HasPrefix(creds.AppKey, "base64:"))
	require.Len(t, creds.StaticToken, 32)
}

func TestGenerateKeepsProvidedValues(t *testing.T) {
	t.Parallel()

	provided := vault.Credentials{
		DBName: "accounting",
		DBUser: "books",
		DBPass: "operator-chosen",
	}

	creds, err := vault.Generate(provided)
	require.NoError(t, err)

	require.Equal(t, "accounting", creds.DBName)
	require.Equal(t, "books", creds.DBUser)
	require.Equal(t, "operator-chosen", creds.DBPass)

	// The rest is still generated.
	require.NotEmpty(t, creds.AppKey)
	require.NotEmpty(t, creds.StaticToken)
}

func TestGenerateIsRandom(t *testing.T) {
	t.Parallel()

	first, err := vault.Generate(vault.Credentials{})
	require.NoError(t, err)

	second, err := vault.Generate(vault.Credentials{})
	require.NoError(t, err)

	require.NotEqual(t, first.DBPass, second.DBPass)
	require.NotEqual(t, first.AppKey, second.AppKey)
	require.NotEqual(t, first.StaticToken, second.StaticToken)
}

func TestWritePlaintext(t *testing.T) {
	t.Parallel()

	creds, err := vault.Generate(vault.Credentials{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "credentials.txt")
	written, err := vault.Write(context.Background(), creds, path, "")
	require.NoError(t, err)
	require.Equal(t, path, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), creds.DBPass)
	require.Contains(t, string(body), creds.AppKey)
}

func TestCheckPassphrase(t *testing.T) {
	t.Parallel()

	// Too short, and long enough but with too few distinct characters.
	require.Error(t, vault.CheckPassphrase("abc"))
	require.Error(t, vault.CheckPassphrase("aaaaaaaaaa"))
	require.NoError(t, vault.CheckPassphrase("vT9#mQ2!xLr7pW"))
}
