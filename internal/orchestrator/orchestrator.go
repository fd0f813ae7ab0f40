// Package orchestrator drives the install and update state machines for the
// two applications.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/0ldeuboi/firefly-sub000/internal/certbot"
	"github.com/0ldeuboi/firefly-sub000/internal/config"
	"github.com/0ldeuboi/firefly-sub000/internal/database"
	"github.com/0ldeuboi/firefly-sub000/internal/phpapp"
	"github.com/0ldeuboi/firefly-sub000/internal/release"
	"github.com/0ldeuboi/firefly-sub000/internal/sysdeps"
	"github.com/0ldeuboi/firefly-sub000/internal/vault"
	"github.com/0ldeuboi/firefly-sub000/internal/webserver"
)

// State is where an application is in its install/update lifecycle.
type State string

const (
	StateNotInstalled    State = "not installed"
	StateInstalling      State = "installing"
	StateConfigured      State = "configured"
	StateUpToDate        State = "up to date"
	StateUpdateAvailable State = "update available"
	StateUpdating        State = "updating"
	StateUpdated         State = "updated"
	StateRolledBack      State = "rolled back"
)

// ErrDeclined is returned when the operator rejects a confirmation prompt.
var ErrDeclined = errors.New("operation declined by the operator")

// App is one installation target.
type App struct {
	// Name is the human readable application name.
	Name string

	// SiteName is the web server site identifier, also used for the cron
	// file and staging directory names.
	SiteName string

	// Dir is the installation directory.
	Dir string

	// Source serves this application's releases.
	Source release.Source

	// Primary marks the finance manager itself, which owns the database
	// schema and the scheduled jobs. The importer does neither.
	Primary bool

	// EnvKeys are the configuration keys that must be present and not
	// placeholders for the installation to count as healthy.
	EnvKeys []string
}

// StagingDir is where a new release is unpacked before it replaces the live
// installation. It lives next to the installation directory so the final move
// stays on one filesystem.
func (a *App) StagingDir() string {
	return filepath.Join(filepath.Dir(a.Dir), "."+a.SiteName+"-staging")
}

// Orchestrator sequences the collaborators for one run.
type Orchestrator struct {
	Config *config.RunConfig

	Packages sysdeps.Manager
	Database database.Client
	Web      webserver.Server
	Certs    certbot.Issuer
	PHP      phpapp.Runner

	// Creds holds the credentials generated or carried over for this run.
	Creds vault.Credentials

	// CronFilePath overrides the managed crontab location, used by tests.
	CronFilePath string

	// Confirm asks the operator a yes/no question. Nil means auto-confirm,
	// which is also the non-interactive behavior.
	Confirm func(question string) (bool, error)

	// Step, when set, is told as each phase of an install or update starts.
	// The interactive surface uses it to drive a progress display.
	Step func(name string)
}

func (o *Orchestrator) step(name string) {
	if o.Step != nil {
		o.Step(name)
	}
}

// Decide runs the health check and reports which path an application should
// take.
func (o *Orchestrator) Decide(ctx context.Context, app *App) (State, error) {
	if !o.healthy(ctx, app) {
		return StateNotInstalled, nil
	}

	current, err := o.installedVersion(app)
	if err != nil {
		return StateNotInstalled, nil //nolint:nilerr
	}

	latest, err := app.Source.Resolve(ctx, "")
	if err != nil {
		return "", err
	}

	newer, err := isNewer(latest.Tag, current)
	if err != nil {
		return "", err
	}

	if newer {
		return StateUpdateAvailable, nil
	}

	return StateUpToDate, nil
}

func (o *Orchestrator) confirm(question string) (bool, error) {
	if o.Config.NonInteractive || o.Confirm == nil {
		return true, nil
	}

	return o.Confirm(question)
}
