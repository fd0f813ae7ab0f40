// Package webserver manages Apache virtual hosts for the two applications.
package webserver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"text/template"

	"github.com/lxc/incus/v6/shared/subprocess"
)

const sitesAvailable = "/etc/apache2/sites-available"

// SiteData parameterizes the virtual host template.
type SiteData struct {
	Domain       string
	Port         int
	DocumentRoot string
	UseTLS       bool
	CertDir      string
}

// Somewhat trimmed down version of the vhost the upstream installer ships.
const siteTemplate = `<VirtualHost *:{{.Port}}>
{{- if .Domain}}
    ServerName {{.Domain}}
{{- end}}
    DocumentRoot {{.DocumentRoot}}/public

    <Directory {{.DocumentRoot}}/public>
        Options -Indexes +FollowSymLinks
        AllowOverride All
        Require all granted
    </Directory>
{{- if .UseTLS}}

    SSLEngine on
    SSLCertificateFile {{.CertDir}}/fullchain.pem
    SSLCertificateKeyFile {{.CertDir}}/privkey.pem
{{- end}}

    ErrorLog ${APACHE_LOG_DIR}/error.log
    CustomLog ${APACHE_LOG_DIR}/access.log combined
</VirtualHost>
`

// Server is the web-server capability the reconciler consumes.
type Server interface {
	// SitePath returns where the named site configuration lives.
	SitePath(name string) string

	// WriteSite writes a site configuration file.
	WriteSite(name string, content []byte) error

	// EnableSite enables a site configuration.
	EnableSite(ctx context.Context, name string) error

	// EnableModule enables a server module.
	EnableModule(ctx context.Context, name string) error

	// TestConfig validates the full server configuration.
	TestConfig(ctx context.Context) error

	// Reload applies the configuration to the running server.
	Reload(ctx context.Context) error

	// IsActive reports whether the server is running.
	IsActive(ctx context.Context) bool
}

// RenderSite renders the virtual host configuration for the given data.
func RenderSite(data SiteData) ([]byte, error) {
	tmpl, err := template.New("site").Parse(siteTemplate)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Apache drives the system's Apache instance through its own tooling.
type Apache struct{}

func (*Apache) SitePath(name string) string {
	return filepath.Join(sitesAvailable, name+".conf")
}

func (a *Apache) WriteSite(name string, content []byte) error {
	return os.WriteFile(a.SitePath(name), content, 0o644) //nolint:gosec
}

func (*Apache) EnableSite(ctx context.Context, name string) error {
	_, err := subprocess.RunCommandContext(ctx, "a2ensite", name)
	if err != nil {
		return errors.New("unable to enable site " + name + ": " + err.Error())
	}

	return nil
}

func (*Apache) EnableModule(ctx context.Context, name string) error {
	_, err := subprocess.RunCommandContext(ctx, "a2enmod", name)
	if err != nil {
		return errors.New("unable to enable module " + name + ": " + err.Error())
	}

	return nil
}

func (*Apache) TestConfig(ctx context.Context) error {
	_, err := subprocess.RunCommandContext(ctx, "apache2ctl", "configtest")
	if err != nil {
		return errors.New("apache configuration test failed: " + err.Error())
	}

	return nil
}

func (*Apache) Reload(ctx context.Context) error {
	_, err := subprocess.RunCommandContext(ctx, "systemctl", "reload", "apache2")
	if err != nil {
		return err
	}

	return nil
}

func (*Apache) IsActive(ctx context.Context) bool {
	_, err := subprocess.RunCommandContext(ctx, "systemctl", "is-active", "--quiet", "apache2")

	return err == nil
}
