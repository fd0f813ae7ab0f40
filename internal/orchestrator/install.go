package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lxc/incus/v6/shared/subprocess"

	"github.com/0ldeuboi/firefly-sub000/internal/compat"
	"github.com/0ldeuboi/firefly-sub000/internal/config"
	"github.com/0ldeuboi/firefly-sub000/internal/envfile"
	"github.com/0ldeuboi/firefly-sub000/internal/phpapp"
	"github.com/0ldeuboi/firefly-sub000/internal/reconcile"
	"github.com/0ldeuboi/firefly-sub000/internal/release"
	"github.com/0ldeuboi/firefly-sub000/internal/version"
	"github.com/0ldeuboi/firefly-sub000/internal/webserver"
)

// basePackages are the system dependencies every installation needs, on top
// of the configured database engine's server package.
var basePackages = []string{"apache2", "curl", "unzip", "cron"}

// phpExtensions are installed alongside the resolved runtime version.
var phpExtensions = []string{"bcmath", "intl", "curl", "zip", "gd", "xml", "mbstring", "mysql", "sqlite3"}

// Install takes an application through the fresh-install path. A migration
// failure here is fatal with no rollback target, unlike the update path.
func (o *Orchestrator) Install(ctx context.Context, app *App) (State, error) {
	slog.Info("Starting fresh installation", "app", app.Name, "dir", app.Dir, "state", StateInstalling)

	o.step("Installing system dependencies")

	packages := append([]string{config.EnginePackage(o.Config.DBEngine)}, basePackages...)

	err := o.Packages.Install(ctx, packages...)
	if err != nil {
		return "", fmt.Errorf("system dependency installation failed, run \"apt-get install %v\" manually: %w", packages, err)
	}

	rel, err := app.Source.Resolve(ctx, "")
	if err != nil {
		return "", err
	}

	o.step("Resolving the runtime")

	runtime, err := o.ensureRuntime(ctx, app, rel.Tag)
	if err != nil {
		return "", err
	}

	if o.Config.HasDomain {
		o.step("Issuing the TLS certificate")

		err = o.Packages.Install(ctx, "certbot", "python3-certbot-apache")
		if err != nil {
			return "", errors.New("unable to install the TLS issuer: " + err.Error())
		}

		_, err = reconcile.EnsureCertificate(ctx, o.Certs, o.Config.DomainName, o.Config.EmailAddress)
		if err != nil {
			return "", errors.New("TLS certificate issuance failed: " + err.Error())
		}
	}

	o.step("Downloading " + rel.Tag)

	err = o.fetchInto(ctx, app, rel, app.Dir)
	if err != nil {
		return "", err
	}

	o.step("Installing application dependencies")

	err = o.PHP.ComposerInstall(ctx, app.Dir)
	if err != nil {
		return "", errors.New("application dependency installation failed: " + err.Error())
	}

	o.step("Configuring the environment")

	err = o.configureEnvironment(ctx, app)
	if err != nil {
		return "", err
	}

	if app.Primary {
		o.step("Running database migrations")

		err = phpapp.Migrate(ctx, o.PHP, app.Dir)
		if err != nil {
			return "", errors.New("database migration failed: " + err.Error())
		}

		err = phpapp.MaintenanceCommands(ctx, o.PHP, app.Dir)
		if err != nil {
			return "", err
		}
	}

	err = phpapp.CacheClear(ctx, o.PHP, app.Dir)
	if err != nil {
		slog.Warn("Cache clear failed", "app", app.Name, "err", err)
	}

	o.step("Configuring the web server")

	err = o.reconcileSite(ctx, app)
	if err != nil {
		return "", err
	}

	if app.Primary {
		err = o.reconcileCron(app)
		if err != nil {
			return "", err
		}
	}

	err = o.fixOwnership(ctx, app.Dir)
	if err != nil {
		slog.Warn("Ownership fixup failed", "app", app.Name, "err", err)
	}

	slog.Info("Installation complete", "app", app.Name, "version", rel.Tag, "runtime", runtime, "state", StateConfigured)

	return StateConfigured, nil
}

// ensureRuntime resolves and installs a runtime version compatible with the
// release, or the pinned version when the operator set one.
func (o *Orchestrator) ensureRuntime(ctx context.Context, app *App, tag string) (string, error) {
	target := o.Config.PHPVersion

	if target == "" {
		minimum, err := compat.MinimumRuntime(ctx, app.Source, tag)
		if err != nil {
			slog.Warn("Unable to determine the release's runtime requirement, proceeding with the distribution default", "app", app.Name, "err", err)

			minimum = "0"
		}

		available, err := o.Packages.CandidateVersions(ctx, "php")
		if err != nil {
			return "", err
		}

		chosen, ok := compat.FindCompatibleRuntime(minimum, available)
		if !ok {
			// The distribution doesn't carry a new enough runtime.
			err = o.Packages.EnablePHPRepository(ctx)
			if err != nil {
				return "", err
			}

			available, err = o.Packages.CandidateVersions(ctx, "php")
			if err != nil {
				return "", err
			}

			chosen, ok = compat.FindCompatibleRuntime(minimum, available)
			if !ok {
				return "", fmt.Errorf("no installable runtime satisfies the release requirement %q", minimum)
			}
		}

		target = chosen

		ok, err = o.confirm("Install PHP " + target + "?")
		if err != nil {
			return "", err
		}

		if !ok {
			return "", ErrDeclined
		}
	}

	series := version.MajorMinor(target)

	err := o.Packages.Install(ctx, "php"+series)
	if err != nil {
		return "", fmt.Errorf("runtime installation failed, run \"apt-get install php%s\" manually: %w", series, err)
	}

	// Extensions degrade functionality when missing but don't corrupt
	// anything, so a failed one is logged and skipped.
	extensions := make([]string, 0, len(phpExtensions))
	for _, ext := range phpExtensions {
		extensions = append(extensions, "php"+series+"-"+ext)
	}

	err = o.Packages.Install(ctx, extensions...)
	if err != nil {
		slog.Warn("Runtime extension installation failed", "packages", extensions, "err", err)
	}

	return target, nil
}

// fetchInto acquires and extracts a release archive into the target directory.
func (o *Orchestrator) fetchInto(ctx context.Context, app *App, rel *release.Release, target string) error {
	downloadDir, err := os.MkdirTemp("", "firefly-download-")
	if err != nil {
		return err
	}

	defer func() { _ = os.RemoveAll(downloadDir) }()

	acquirer := release.NewAcquirer(app.Source)

	archive, err := acquirer.Acquire(ctx, rel, downloadDir)
	if err != nil {
		return err
	}

	err = os.MkdirAll(target, 0o755)
	if err != nil {
		return err
	}

	return release.Extract(archive, target)
}

// configureEnvironment reconciles the database resources and the
// application's dotenv file.
func (o *Orchestrator) configureEnvironment(ctx context.Context, app *App) error {
	if app.Primary {
		_, err := reconcile.EnsureDatabase(ctx, o.Database, o.Creds.DBName)
		if err != nil {
			return err
		}

		_, err = reconcile.EnsureDatabaseUser(ctx, o.Database, o.Creds.DBUser, o.Creds.DBPass, o.Creds.DBName)
		if err != nil {
			return err
		}
	}

	envPath := filepath.Join(app.Dir, ".env")

	_, err := os.Stat(envPath)
	if os.IsNotExist(err) {
		example, err := os.ReadFile(filepath.Join(app.Dir, ".env.example")) //nolint:gosec
		if err != nil {
			return errors.New("no environment file or sample found: " + err.Error())
		}

		err = os.WriteFile(envPath, example, 0o640) //nolint:gosec
		if err != nil {
			return err
		}
	}

	env, err := envfile.Load(envPath)
	if err != nil {
		return err
	}

	if app.Primary {
		env.Ensure("APP_KEY", o.Creds.AppKey)
		env.Ensure("DB_CONNECTION", "mysql")
		env.Ensure("DB_HOST", "127.0.0.1")
		env.Ensure("DB_DATABASE", o.Creds.DBName)
		env.Ensure("DB_USERNAME", o.Creds.DBUser)
		env.Ensure("DB_PASSWORD", o.Creds.DBPass)
		env.Ensure("STATIC_CRON_TOKEN", o.Creds.StaticToken)
		env.Ensure("APP_URL", o.baseURL())
	} else {
		env.Ensure("FIREFLY_III_URL", o.baseURL())
		env.Ensure("FIREFLY_III_ACCESS_TOKEN", o.Creds.StaticToken)
	}

	return env.Save()
}

// reconcileSite renders and deploys the application's virtual host.
func (o *Orchestrator) reconcileSite(ctx context.Context, app *App) error {
	useTLS := o.Config.HasDomain && o.Certs.HasCertificate(o.Config.DomainName)

	data := webserver.SiteData{
		Domain:       o.Config.DomainName,
		Port:         80,
		DocumentRoot: filepath.Join(app.Dir, "public"),
	}

	modules := []string{"rewrite"}

	if useTLS {
		data.Port = 443
		data.UseTLS = true
		data.CertDir = filepath.Dir(o.Certs.CertificatePath(o.Config.DomainName))
		modules = append(modules, "ssl")
	}

	content, err := webserver.RenderSite(data)
	if err != nil {
		return err
	}

	_, err = reconcile.EnsureSite(ctx, o.Web, app.SiteName, content, modules)

	return err
}

// reconcileCron ensures the scheduled-jobs entry for the finance manager.
func (o *Orchestrator) reconcileCron(app *App) error {
	path := o.CronFilePath
	if path == "" {
		path = "/etc/cron.d/firefly-install"
	}

	crontab := &reconcile.CronFile{Path: path}
	schedule := fmt.Sprintf("0 %d * * *", o.Config.CronHour)

	_, err := crontab.EnsureEntry(schedule, "root", "/usr/bin/php "+filepath.Join(app.Dir, "artisan")+" schedule:run")

	return err
}

func (o *Orchestrator) baseURL() string {
	if o.Config.HasDomain {
		return "https://" + o.Config.DomainName
	}

	return "http://localhost"
}

func (o *Orchestrator) fixOwnership(ctx context.Context, dir string) error {
	_, err := subprocess.RunCommandContext(ctx, "chown", "-R", "www-data:www-data", dir)
	if err != nil {
		return err
	}

	_, err = subprocess.RunCommandContext(ctx, "chmod", "-R", "775", filepath.Join(dir, "storage"))

	return err
}
