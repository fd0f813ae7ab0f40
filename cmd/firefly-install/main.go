// Package main is the Firefly III installer and updater.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lxc/incus/v6/shared/ask"
	"github.com/spf13/cobra"

	"github.com/0ldeuboi/firefly-sub000/internal/certbot"
	"github.com/0ldeuboi/firefly-sub000/internal/config"
	"github.com/0ldeuboi/firefly-sub000/internal/database"
	"github.com/0ldeuboi/firefly-sub000/internal/logging"
	"github.com/0ldeuboi/firefly-sub000/internal/orchestrator"
	"github.com/0ldeuboi/firefly-sub000/internal/phpapp"
	"github.com/0ldeuboi/firefly-sub000/internal/release"
	"github.com/0ldeuboi/firefly-sub000/internal/sysdeps"
	"github.com/0ldeuboi/firefly-sub000/internal/tui"
	"github.com/0ldeuboi/firefly-sub000/internal/vault"
	"github.com/0ldeuboi/firefly-sub000/internal/webserver"
)

var version = "dev"

const lockPath = "/run/firefly-install.lock"

type cmdGlobal struct {
	flagHelp           bool
	flagVersion        bool
	flagNonInteractive bool
	flagConfig         string
	flagCheck          bool
	flagVerbose        bool
}

func main() {
	// Global flags.
	globalCmd := cmdGlobal{}

	app := &cobra.Command{
		Use:   "firefly-install",
		Short: "Firefly III installer and updater",
		Long: "Firefly III installer and updater\n\n" +
			"Installs or updates Firefly III and its data importer on an Ubuntu host,\n" +
			"provisioning PHP, Apache, MariaDB, TLS certificates and scheduled jobs.",
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE:              globalCmd.run,
	}

	app.PersistentFlags().BoolVarP(&globalCmd.flagHelp, "help", "h", false, "Print help command")
	app.PersistentFlags().BoolVarP(&globalCmd.flagVersion, "version", "v", false, "Print binary version")

	app.Flags().BoolVarP(&globalCmd.flagNonInteractive, "non-interactive", "n", false, "Skip the startup selector and all prompts")
	app.Flags().StringVarP(&globalCmd.flagConfig, "config", "c", "", "Path to a YAML seed configuration file")
	app.Flags().BoolVar(&globalCmd.flagCheck, "check", false, "Report each application's state without changing anything")
	app.Flags().BoolVar(&globalCmd.flagVerbose, "verbose", false, "Log debug detail to the run log")

	// Help handling.
	app.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	// Run the main command and handle errors.
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func (c *cmdGlobal) run(_ *cobra.Command, _ []string) error {
	if c.flagVersion {
		_, _ = fmt.Println("firefly-install version " + version) //nolint:forbidigo

		return nil
	}

	ctx := context.Background()

	if os.Geteuid() != 0 {
		return errors.New("this installer must run as root")
	}

	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		return err
	}

	if c.flagNonInteractive {
		cfg.NonInteractive = true
	}

	// Unattended runs keep the console clean; the run log carries the
	// full transcript either way.
	logPath, closeLog, err := logging.Setup(logging.DefaultDir, c.flagVerbose, cfg.NonInteractive)
	if err != nil {
		return err
	}

	defer closeLog()

	// The log location must survive any failure below.
	defer func() {
		fmt.Println("\nFull run log: " + logPath) //nolint:forbidigo
	}()

	err = c.install(ctx, cfg)
	if err != nil {
		slog.Error("Run failed", "err", err)

		if !cfg.NonInteractive {
			fmt.Println("The run failed: " + err.Error()) //nolint:forbidigo
		}

		return err
	}

	return nil
}

func (c *cmdGlobal) install(ctx context.Context, cfg *config.RunConfig) error {
	asker := ask.NewAsker(bufio.NewReader(os.Stdin))

	if !cfg.NonInteractive && !c.flagCheck {
		mode, err := tui.SelectMode(tui.SelectTimeout)
		if err != nil {
			return err
		}

		switch mode {
		case tui.ModeCancelled:
			slog.Info("Cancelled by the operator, nothing was changed")

			return nil
		case tui.ModeNonInteractive:
			cfg.NonInteractive = true
		case tui.ModeInteractive:
			err = tui.PromptConfig(asker, cfg)
			if err != nil {
				return err
			}
		}
	}

	// Required fields are checked before anything is mutated.
	err := cfg.Validate()
	if err != nil {
		return err
	}

	creds, err := vault.Generate(vault.Credentials{
		DBName: cfg.DBName,
		DBUser: cfg.DBUser,
		DBPass: cfg.DBPass,
	})
	if err != nil {
		return err
	}

	o := &orchestrator.Orchestrator{
		Config:   cfg,
		Packages: &sysdeps.Apt{},
		Database: &database.MySQL{},
		Web:      &webserver.Apache{},
		Certs:    &certbot.Certbot{},
		PHP:      &phpapp.PHP{},
		Creds:    creds,
	}

	apps := []*orchestrator.App{
		{
			Name:     "Firefly III",
			SiteName: "firefly-iii",
			Dir:      cfg.FireflyDir,
			Source:   release.NewGitHub("firefly-iii", "firefly-iii", "FireflyIII", cfg.GithubToken),
			Primary:  true,
			EnvKeys:  []string{"APP_KEY", "DB_PASSWORD"},
		},
		{
			Name:     "Firefly III Data Importer",
			SiteName: "firefly-importer",
			Dir:      cfg.ImporterDir,
			Source:   release.NewGitHub("firefly-iii", "data-importer", "DataImporter", cfg.GithubToken),
			EnvKeys:  []string{"FIREFLY_III_ACCESS_TOKEN"},
		},
	}

	if c.flagCheck {
		return checkOnly(ctx, o, apps)
	}

	lock, err := orchestrator.AcquireLock(lockPath)
	if err != nil {
		return err
	}

	defer lock.Release()

	credentialsUsed := false

	for _, app := range apps {
		state, err := o.Decide(ctx, app)
		if err != nil {
			return err
		}

		switch state {
		case orchestrator.StateNotInstalled:
			state, err = c.runPhase(o, app.Name+" installation", 8, func() (orchestrator.State, error) {
				return o.Install(ctx, app)
			})
			if err != nil {
				return err
			}

			credentialsUsed = true

		case orchestrator.StateUpdateAvailable:
			state, err = c.runPhase(o, app.Name+" update", 4, func() (orchestrator.State, error) {
				return o.Update(ctx, app)
			})
			if err != nil {
				if errors.Is(err, orchestrator.ErrDeclined) {
					slog.Info("Update declined", "app", app.Name)

					continue
				}

				if state == orchestrator.StateRolledBack {
					return errors.New(app.Name + " update failed and was rolled back: " + err.Error())
				}

				return err
			}

		default:
		}

		slog.Info("Application state", "app", app.Name, "state", state)
	}

	if credentialsUsed {
		passphrase := ""

		if !cfg.NonInteractive {
			passphrase, err = tui.PromptPassphrase(asker)
			if err != nil {
				return err
			}
		}

		written, err := vault.Write(ctx, o.Creds, vault.DefaultPath, passphrase)
		if err != nil {
			return err
		}

		slog.Info("Credentials written", "path", written)
	}

	return nil
}

// runPhase wraps an install or update with the step progress display when
// running interactively. The display owns the terminal for the duration, so
// mid-phase confirmations are routed through its dialog instead of stdin.
func (c *cmdGlobal) runPhase(o *orchestrator.Orchestrator, title string, stepCount int, fn func() (orchestrator.State, error)) (orchestrator.State, error) {
	if o.Config.NonInteractive {
		return fn()
	}

	steps := tui.NewSteps(title, stepCount)
	o.Step = steps.Advance
	o.Confirm = steps.Confirm

	defer func() {
		o.Step = nil
		o.Confirm = nil

		steps.Done()
	}()

	return fn()
}

// checkOnly reports each application's state without mutating anything.
func checkOnly(ctx context.Context, o *orchestrator.Orchestrator, apps []*orchestrator.App) error {
	for _, app := range apps {
		state, err := o.Decide(ctx, app)
		if err != nil {
			return err
		}

		fmt.Println(app.Name + ": " + string(state)) //nolint:forbidigo
	}

	return nil
}
