package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lxc/incus/v6/shared/revert"
	"github.com/lxc/incus/v6/shared/subprocess"

	"github.com/0ldeuboi/firefly-sub000/internal/backup"
	"github.com/0ldeuboi/firefly-sub000/internal/compat"
	"github.com/0ldeuboi/firefly-sub000/internal/phpapp"
	"github.com/0ldeuboi/firefly-sub000/internal/version"
)

// backupsToKeep is how many old snapshots survive a successful update.
const backupsToKeep = 5

// releasesToScan bounds the compatibility walk when the latest release
// requires a newer runtime than is installed.
const releasesToScan = 10

// Update replaces a healthy installation with a newer release. From the
// moment the live directory is moved aside, any failure restores the
// pre-update snapshot and the result is StateRolledBack.
func (o *Orchestrator) Update(ctx context.Context, app *App) (State, error) {
	current, err := o.installedVersion(app)
	if err != nil {
		return "", err
	}

	ok, err := o.confirm("Update " + app.Name + " (currently " + current + ")?")
	if err != nil {
		return "", err
	}

	if !ok {
		return "", ErrDeclined
	}

	slog.Info("Starting update", "app", app.Name, "from", current, "state", StateUpdating)

	o.step("Snapshotting the current installation")

	backupPath, err := backup.Snapshot(app.Dir)
	if err != nil {
		return "", errors.New("unable to snapshot the current installation: " + err.Error())
	}

	slog.Info("Snapshot taken", "app", app.Name, "backup", backupPath)

	o.step("Selecting a compatible release")

	choice, err := o.chooseRelease(ctx, app, current)
	if err != nil {
		return "", err
	}

	rel, err := app.Source.Resolve(ctx, choice.Tag)
	if err != nil {
		return "", err
	}

	staging := app.StagingDir()

	err = os.RemoveAll(staging)
	if err != nil {
		return "", err
	}

	defer func() { _ = os.RemoveAll(staging) }()

	o.step("Downloading " + rel.Tag)

	err = o.fetchInto(ctx, app, rel, staging)
	if err != nil {
		return "", err
	}

	// Carry the live configuration over to the staged tree.
	err = copyEnvFile(filepath.Join(app.Dir, ".env"), filepath.Join(staging, ".env"))
	if err != nil {
		return "", err
	}

	err = o.PHP.ComposerInstall(ctx, staging)
	if err != nil {
		return "", errors.New("application dependency installation failed: " + err.Error())
	}

	o.step("Activating " + rel.Tag)

	// Everything up to here left the live installation untouched. The
	// rollback window opens with the move below.
	err = o.swapAndFinish(ctx, app, staging)
	if err != nil {
		slog.Error("Update failed, restoring the previous installation", "app", app.Name, "err", err)

		restoreErr := backup.Restore(backupPath, app.Dir)
		if restoreErr != nil {
			return "", errors.New("rollback failed, manual restore from " + backupPath + " required: " + restoreErr.Error())
		}

		slog.Info("Previous installation restored", "app", app.Name, "state", StateRolledBack)

		return StateRolledBack, err
	}

	err = backup.Prune(app.Dir, backupsToKeep)
	if err != nil {
		slog.Warn("Backup pruning failed", "app", app.Name, "err", err)
	}

	slog.Info("Update complete", "app", app.Name, "version", rel.Tag, "state", StateUpdated)

	return StateUpdated, nil
}

// swapAndFinish moves the staged tree into place and runs the post-move
// steps. Any error it returns triggers a restore in the caller.
func (o *Orchestrator) swapAndFinish(ctx context.Context, app *App, staging string) error {
	reverter := revert.New()
	defer reverter.Fail()

	aside := app.Dir + ".old"

	err := os.RemoveAll(aside)
	if err != nil {
		return err
	}

	err = os.Rename(app.Dir, aside)
	if err != nil {
		return err
	}

	reverter.Add(func() { _ = os.Rename(aside, app.Dir) })

	err = os.Rename(staging, app.Dir)
	if err != nil {
		return err
	}

	if app.Primary {
		err = phpapp.Migrate(ctx, o.PHP, app.Dir)
		if err != nil {
			return errors.New("database migration failed: " + err.Error())
		}

		err = phpapp.MaintenanceCommands(ctx, o.PHP, app.Dir)
		if err != nil {
			return err
		}
	}

	err = phpapp.CacheClear(ctx, o.PHP, app.Dir)
	if err != nil {
		slog.Warn("Cache clear failed", "app", app.Name, "err", err)
	}

	err = o.reconcileSite(ctx, app)
	if err != nil {
		return err
	}

	err = o.fixOwnership(ctx, app.Dir)
	if err != nil {
		slog.Warn("Ownership fixup failed", "app", app.Name, "err", err)
	}

	_ = os.RemoveAll(aside)

	reverter.Success()

	return nil
}

// chooseRelease picks the newest release the installed runtime can run,
// falling back to an older release when the latest needs a newer runtime.
// Neither available aborts the update before anything is touched.
func (o *Orchestrator) chooseRelease(ctx context.Context, app *App, current string) (*compat.Choice, error) {
	runtime := o.Config.PHPVersion
	if runtime == "" {
		runtime = o.installedRuntime(ctx)
	}

	if runtime == "" {
		return nil, errors.New("unable to determine the installed runtime version")
	}

	choice, err := compat.FindCompatibleRelease(ctx, app.Source, runtime, releasesToScan)
	if err != nil {
		return nil, err
	}

	if choice.Caution {
		slog.Warn("Runtime requirement of the selected release is unknown, proceeding", "app", app.Name, "tag", choice.Tag)
	}

	newer, err := isNewer(choice.Tag, current)
	if err != nil {
		return nil, err
	}

	if !newer {
		return nil, errors.New("no compatible release newer than the installed " + current)
	}

	return choice, nil
}

// installedRuntime asks the system php binary for its version.
func (o *Orchestrator) installedRuntime(ctx context.Context) string {
	out, err := phpVersionOutput(ctx)
	if err != nil {
		return ""
	}

	return version.Normalize(out)
}

func phpVersionOutput(ctx context.Context) (string, error) {
	out, err := subprocess.RunCommandContext(ctx, "php", "-r", "echo PHP_VERSION;")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func copyEnvFile(src string, dst string) error {
	content, err := os.ReadFile(src) //nolint:gosec
	if err != nil {
		return errors.New("unable to carry over the environment file: " + err.Error())
	}

	return os.WriteFile(dst, content, 0o640) //nolint:gosec
}
