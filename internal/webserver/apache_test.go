package webserver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/webserver"
)

func TestRenderSitePlainHTTP(t *testing.T) {
	t.Parallel()

	content, err := webserver.RenderSite(webserver.SiteData{
		Port:         80,
		DocumentRoot: "/var/www/firefly-iii",
	})
	require.NoError(t, err)

	rendered := string(content)
	require.Contains(t, rendered, "<VirtualHost *:80>")
	require.Contains(t, rendered, "DocumentRoot /var/www/firefly-iii/public")
	require.NotContains(t, rendered, "ServerName")
	require.NotContains(t, rendered, "SSLEngine")
}

func TestRenderSiteTLS(t *testing.T) {
	t.Parallel()

	content, err := webserver.RenderSite(webserver.SiteData{
		Domain:       "money.example.org",
		Port:         443,
		DocumentRoot: "/var/www/firefly-iii",
		UseTLS:       true,
		CertDir:      "/etc/letsencrypt/live/money.example.org",
	})
	require.NoError(t, err)

	rendered := string(content)
	require.Contains(t, rendered, "ServerName money.example.org")
	require.Contains(t, rendered, "SSLCertificateFile /etc/letsencrypt/live/money.example.org/fullchain.pem")
	require.Contains(t, rendered, "SSLCertificateKeyFile /etc/letsencrypt/live/money.example.org/privkey.pem")
}

func TestRenderSiteIsDeterministic(t *testing.T) {
	t.Parallel()

	data := webserver.SiteData{Domain: "money.example.org", Port: 80, DocumentRoot: "/var/www/firefly-iii"}

	first, err := webserver.RenderSite(data)
	require.NoError(t, err)

	second, err := webserver.RenderSite(data)
	require.NoError(t, err)

	// Byte-identical output is what makes the site reconciliation a no-op
	// on re-runs.
	require.Equal(t, first, second)
}
