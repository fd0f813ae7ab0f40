// Package phpapp wraps the applications' own CLI surface: composer for
// dependency installation and artisan for migrations and maintenance.
package phpapp

import (
	"context"
	"errors"
	"os"

	"github.com/lxc/incus/v6/shared/subprocess"
)

// Runner is the application capability the orchestrator consumes.
type Runner interface {
	// ComposerInstall installs the application-level dependencies.
	ComposerInstall(ctx context.Context, dir string) error

	// Artisan runs an artisan command inside the installation directory.
	Artisan(ctx context.Context, dir string, args ...string) error

	// GenerateKey produces a fresh application key through the
	// application's own generator.
	GenerateKey(ctx context.Context, dir string) (string, error)
}

// PHP runs composer and artisan through the system's php binary.
type PHP struct{}

func (*PHP) ComposerInstall(ctx context.Context, dir string) error {
	env := append(os.Environ(), "COMPOSER_ALLOW_SUPERUSER=1")

	_, _, err := subprocess.RunCommandSplit(ctx, env, nil, "composer", "install",
		"--no-dev", "--no-interaction", "--no-progress", "--working-dir", dir)
	if err != nil {
		return errors.New("composer install failed: " + err.Error())
	}

	return nil
}

func (*PHP) Artisan(ctx context.Context, dir string, args ...string) error {
	cmdArgs := append([]string{dir + "/artisan"}, args...)

	_, err := subprocess.RunCommandContext(ctx, "php", cmdArgs...)
	if err != nil {
		return err
	}

	return nil
}

// GenerateKey asks artisan for a new key without writing it to the
// environment file, so the caller stays in charge of persistence.
func (*PHP) GenerateKey(ctx context.Context, dir string) (string, error) {
	output, err := subprocess.RunCommandContext(ctx, "php", dir+"/artisan", "key:generate", "--show")
	if err != nil {
		return "", err
	}

	return trimOutput(output), nil
}

// Migrate runs the application's database migrations.
func Migrate(ctx context.Context, r Runner, dir string) error {
	return r.Artisan(ctx, dir, "migrate", "--force", "--no-interaction")
}

// MaintenanceCommands runs the post-migration consistency commands the
// primary application expects after every upgrade.
func MaintenanceCommands(ctx context.Context, r Runner, dir string) error {
	for _, command := range [][]string{
		{"firefly-iii:upgrade-database"},
		{"firefly-iii:correct-database"},
		{"firefly-iii:report-integrity"},
		{"cache:clear"},
		{"config:cache"},
	} {
		err := r.Artisan(ctx, dir, command...)
		if err != nil {
			return err
		}
	}

	return nil
}

// CacheClear refreshes the configuration caches, the only maintenance the
// importer needs.
func CacheClear(ctx context.Context, r Runner, dir string) error {
	err := r.Artisan(ctx, dir, "cache:clear")
	if err != nil {
		return err
	}

	return r.Artisan(ctx, dir, "config:cache")
}

func trimOutput(output string) string {
	for len(output) > 0 && (output[len(output)-1] == '\n' || output[len(output)-1] == '\r') {
		output = output[:len(output)-1]
	}

	return output
}
