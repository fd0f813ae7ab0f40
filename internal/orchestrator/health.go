package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/0ldeuboi/firefly-sub000/internal/envfile"
	"github.com/0ldeuboi/firefly-sub000/internal/version"
)

var versionLineRegex = regexp.MustCompile(`'version'\s*=>\s*'([^']+)'`)

// healthy reports whether an installation is complete enough to be updated
// rather than reinstalled. Any failed check sends the application down the
// fresh-install path; a partial installation is never repaired in place.
func (o *Orchestrator) healthy(ctx context.Context, app *App) bool {
	for _, critical := range []string{"artisan", "composer.json", "public/index.php"} {
		_, err := os.Stat(filepath.Join(app.Dir, critical))
		if err != nil {
			slog.Debug("Health check failed", "app", app.Name, "missing", critical)

			return false
		}
	}

	info, err := os.Stat(filepath.Join(app.Dir, "vendor"))
	if err != nil || !info.IsDir() {
		slog.Debug("Health check failed", "app", app.Name, "missing", "vendor")

		return false
	}

	env, err := envfile.Load(filepath.Join(app.Dir, ".env"))
	if err != nil {
		slog.Debug("Health check failed", "app", app.Name, "missing", ".env")

		return false
	}

	for _, key := range app.EnvKeys {
		if !env.IsConfigured(key) {
			slog.Debug("Health check failed", "app", app.Name, "unconfigured", key)

			return false
		}
	}

	if app.Primary && !o.Database.Ping(ctx) {
		slog.Debug("Health check failed", "app", app.Name, "reason", "database unreachable")

		return false
	}

	if !o.Web.IsActive(ctx) {
		slog.Debug("Health check failed", "app", app.Name, "reason", "web server inactive")

		return false
	}

	return true
}

// installedVersion reads the version the application declares about itself.
func (o *Orchestrator) installedVersion(app *App) (string, error) {
	for _, candidate := range []string{"config/firefly.php", "config/importer.php"} {
		content, err := os.ReadFile(filepath.Join(app.Dir, candidate)) //nolint:gosec
		if err != nil {
			continue
		}

		match := versionLineRegex.FindSubmatch(content)
		if match != nil {
			return string(match[1]), nil
		}
	}

	return "", errors.New("unable to determine installed version for " + app.Name)
}

// isNewer reports whether the release tag is a higher version than current.
func isNewer(tag string, current string) (bool, error) {
	return version.Compare(version.Normalize(tag), ">", version.Normalize(current))
}
