package reconcile

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/0ldeuboi/firefly-sub000/internal/webserver"
)

// EnsureSite deploys a rendered virtual host configuration. The rendered
// content is compared byte for byte against the deployed file, so a matching
// site is left alone and the web server is never reloaded needlessly.
func EnsureSite(ctx context.Context, srv webserver.Server, name string, content []byte, modules []string) (Outcome, error) {
	existing, err := os.ReadFile(srv.SitePath(name))
	if err == nil && bytes.Equal(existing, content) {
		slog.Info("Web server site already configured", "site", name)

		return Unchanged, nil
	}

	err = srv.WriteSite(name, content)
	if err != nil {
		return "", err
	}

	for _, module := range modules {
		err = srv.EnableModule(ctx, module)
		if err != nil {
			return "", err
		}
	}

	err = srv.EnableSite(ctx, name)
	if err != nil {
		return "", err
	}

	// Validate before reloading so a bad render never takes the server down.
	err = srv.TestConfig(ctx)
	if err != nil {
		return "", err
	}

	err = srv.Reload(ctx)
	if err != nil {
		return "", err
	}

	slog.Info("Deployed web server site", "site", name)

	return Created, nil
}
