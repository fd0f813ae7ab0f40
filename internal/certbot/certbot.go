// Package certbot wraps the Let's Encrypt certificate issuer.
package certbot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/lxc/incus/v6/shared/subprocess"
)

const liveDir = "/etc/letsencrypt/live"

// Issuer is the TLS-issuer capability the reconciler consumes.
type Issuer interface {
	// CertificatePath returns where an issued certificate for the domain lives.
	CertificatePath(domain string) string

	// HasCertificate reports whether a certificate already exists for the domain.
	HasCertificate(domain string) bool

	// Issue requests a new certificate. Failure is fatal to the caller;
	// serving a TLS domain without a certificate isn't an option.
	Issue(ctx context.Context, domain string, email string) error
}

// Certbot drives the certbot binary with the Apache plugin.
type Certbot struct{}

func (*Certbot) CertificatePath(domain string) string {
	return filepath.Join(liveDir, domain)
}

func (c *Certbot) HasCertificate(domain string) bool {
	_, err := os.Stat(filepath.Join(c.CertificatePath(domain), "fullchain.pem"))

	return err == nil
}

func (*Certbot) Issue(ctx context.Context, domain string, email string) error {
	_, err := subprocess.RunCommandContext(ctx, "certbot", "--apache",
		"--non-interactive", "--agree-tos", "--redirect",
		"-d", domain, "-m", email)
	if err != nil {
		return errors.New("certificate issuance for " + domain + " failed: " + err.Error())
	}

	return nil
}
