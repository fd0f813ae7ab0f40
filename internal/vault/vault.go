// Package vault generates and persists the secrets created during an
// installation run.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"
	"github.com/muesli/crunchy"
)

// DefaultPath is where the human-readable credentials file ends up.
const DefaultPath = "/root/firefly-credentials.txt"

// Credentials holds everything generated during an install run. Values are
// created once and never regenerated on update unless missing.
type Credentials struct {
	DBName      string
	DBUser      string
	DBPass      string
	AppKey      string
	StaticToken string
}

// Generate fills in any credential that wasn't provided by the operator.
func Generate(existing Credentials) (Credentials, error) {
	creds := existing

	if creds.DBName == "" {
		creds.DBName = "firefly"
	}

	if creds.DBUser == "" {
		creds.DBUser = "firefly"
	}

	var err error

	if creds.DBPass == "" {
		creds.DBPass, err = randomString(24)
		if err != nil {
			return Credentials{}, err
		}
	}

	if creds.AppKey == "" {
		// The application expects exactly 32 bytes, base64 wrapped.
		key := make([]byte, 32)

		_, err = rand.Read(key)
		if err != nil {
			return Credentials{}, err
		}

		creds.AppKey = "base64:" + base64.StdEncoding.EncodeToString(key)
	}

	if creds.StaticToken == "" {
		creds.StaticToken, err = randomString(32)
		if err != nil {
			return Credentials{}, err
		}
	}

	return creds, nil
}

// CheckPassphrase validates the strength of an encryption passphrase.
func CheckPassphrase(passphrase string) error {
	return crunchy.NewValidator().Check(passphrase)
}

// Write persists the credentials, root-readable only, and returns the path
// it actually wrote. When a passphrase is provided the plaintext is replaced
// by an openssl-encrypted file at path plus an ".enc" suffix, matching what
// the operator would use to decrypt it by hand.
func Write(ctx context.Context, creds Credentials, path string, passphrase string) (string, error) {
	var sb strings.Builder

	sb.WriteString("Firefly III credentials\n")
	sb.WriteString("=======================\n\n")
	fmt.Fprintf(&sb, "Database name:     %s\n", creds.DBName)
	fmt.Fprintf(&sb, "Database user:     %s\n", creds.DBUser)
	fmt.Fprintf(&sb, "Database password: %s\n", creds.DBPass)
	fmt.Fprintf(&sb, "Application key:   %s\n", creds.AppKey)
	fmt.Fprintf(&sb, "Static cron token: %s\n", creds.StaticToken)

	if passphrase == "" {
		return path, os.WriteFile(path, []byte(sb.String()), 0o600) //nolint:gosec
	}

	err := CheckPassphrase(passphrase)
	if err != nil {
		return "", errors.New("refusing weak encryption passphrase: " + err.Error())
	}

	// Write plaintext to a private temp file, encrypt, then remove it.
	tmp := path + ".plain"
	encrypted := path + ".enc"

	err = os.WriteFile(tmp, []byte(sb.String()), 0o600) //nolint:gosec
	if err != nil {
		return "", err
	}

	defer func() { _ = os.Remove(tmp) }()

	env := append(os.Environ(), "CREDS_PASSPHRASE="+passphrase)

	_, _, err = subprocess.RunCommandSplit(ctx, env, nil, "openssl", "enc",
		"-aes-256-cbc", "-pbkdf2", "-salt",
		"-in", tmp, "-out", encrypted,
		"-pass", "env:CREDS_PASSPHRASE")
	if err != nil {
		return "", errors.New("unable to encrypt credentials file: " + err.Error())
	}

	return encrypted, os.Chmod(encrypted, 0o600)
}

// randomString returns a URL-safe base64 string derived from n random bytes.
func randomString(n int) (string, error) {
	buf := make([]byte, n)

	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}
