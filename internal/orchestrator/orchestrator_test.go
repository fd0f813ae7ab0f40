package orchestrator_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/config"
	"github.com/0ldeuboi/firefly-sub000/internal/orchestrator"
	"github.com/0ldeuboi/firefly-sub000/internal/release"
	"github.com/0ldeuboi/firefly-sub000/internal/vault"
)

type fakeSource struct {
	tag      string
	archive  map[string]string
	manifest string
}

func (s *fakeSource) Resolve(_ context.Context, tag string) (*release.Release, error) {
	if tag == "" || tag == "latest" {
		tag = s.tag
	}

	return &release.Release{
		Tag:         tag,
		ArchiveName: "FireflyIII-" + tag + ".zip",
		ArchiveURL:  "https://releases.invalid/" + tag + ".zip",
		AssetID:     1,
	}, nil
}

func (s *fakeSource) Tags(_ context.Context, _ int) ([]string, error) {
	return []string{s.tag}, nil
}

func (s *fakeSource) RawFile(_ context.Context, _ string, _ string) ([]byte, error) {
	return []byte(s.manifest), nil
}

func (s *fakeSource) DownloadAsset(_ context.Context, _ int64, target string) error {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for name, content := range s.archive {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(0o644)

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		_, err = w.Write([]byte(content))
		if err != nil {
			return err
		}
	}

	err := zw.Close()
	if err != nil {
		return err
	}

	return os.WriteFile(target, buf.Bytes(), 0o600)
}

type fakePackages struct {
	installed [][]string
}

func (p *fakePackages) CandidateVersions(_ context.Context, _ string) ([]string, error) {
	return []string{"8.2.28"}, nil
}

func (p *fakePackages) Install(_ context.Context, packages ...string) error {
	p.installed = append(p.installed, packages)

	return nil
}

func (p *fakePackages) EnablePHPRepository(_ context.Context) error {
	return nil
}

type fakeDatabase struct {
	databases  map[string]bool
	users      map[string]bool
	statements []string
}

func (d *fakeDatabase) Exec(_ context.Context, statement string) error {
	d.statements = append(d.statements, statement)

	if strings.HasPrefix(statement, "CREATE DATABASE") {
		d.databases[strings.Trim(strings.Fields(statement)[2], "`")] = true
	}

	return nil
}

func (d *fakeDatabase) DatabaseExists(_ context.Context, name string) (bool, error) {
	return d.databases[name], nil
}

func (d *fakeDatabase) UserExists(_ context.Context, name string) (bool, error) {
	return d.users[name], nil
}

func (d *fakeDatabase) Ping(_ context.Context) bool {
	return true
}

type fakeServer struct {
	dir     string
	reloads int
}

func (s *fakeServer) SitePath(name string) string {
	return filepath.Join(s.dir, name+".conf")
}

func (s *fakeServer) WriteSite(name string, content []byte) error {
	return os.WriteFile(s.SitePath(name), content, 0o644)
}

func (s *fakeServer) EnableSite(_ context.Context, _ string) error { return nil }

func (s *fakeServer) EnableModule(_ context.Context, _ string) error { return nil }

func (s *fakeServer) TestConfig(_ context.Context) error { return nil }

func (s *fakeServer) Reload(_ context.Context) error {
	s.reloads++

	return nil
}

func (s *fakeServer) IsActive(_ context.Context) bool { return true }

type fakeIssuer struct{}

func (fakeIssuer) CertificatePath(domain string) string {
	return "/etc/letsencrypt/live/" + domain + "/fullchain.pem"
}

func (fakeIssuer) HasCertificate(_ string) bool { return false }

func (fakeIssuer) Issue(_ context.Context, _ string, _ string) error { return nil }

type fakeRunner struct {
	artisan     [][]string
	failMigrate bool
}

func (r *fakeRunner) ComposerInstall(_ context.Context, dir string) error {
	return os.MkdirAll(filepath.Join(dir, "vendor"), 0o755)
}

func (r *fakeRunner) Artisan(_ context.Context, _ string, args ...string) error {
	r.artisan = append(r.artisan, args)

	if r.failMigrate && len(args) > 0 && args[0] == "migrate" {
		return errors.New("SQLSTATE[42S01]: table already exists")
	}

	return nil
}

func (r *fakeRunner) GenerateKey(_ context.Context, _ string) (string, error) {
	return "base64:0000000000000000000000000000000000000000000=", nil
}

func releaseFiles(version string) map[string]string {
	return map[string]string{
		"artisan":            "#!/usr/bin/env php\n",
		"composer.json":      `{"require":{"php":">=8.2"}}`,
		"public/index.php":   "<?php\n",
		"config/firefly.php": "<?php return ['version' => '" + version + "'];\n",
		".env.example":       "APP_KEY=SomeRandomStringOf32CharsExactly\nDB_PASSWORD=\nAPP_URL=http://localhost\n",
	}
}

func newOrchestrator(t *testing.T, src *fakeSource) (*orchestrator.Orchestrator, *orchestrator.App, *fakeRunner) {
	t.Helper()

	root := t.TempDir()

	runner := &fakeRunner{}

	creds, err := vault.Generate(vault.Credentials{DBName: "firefly", DBUser: "firefly"})
	require.NoError(t, err)

	o := &orchestrator.Orchestrator{
		Config: &config.RunConfig{
			NonInteractive: true,
			DBEngine:       config.EngineMariaDB,
			CronHour:       3,
			PHPVersion:     "8.2.28",
			FireflyDir:     filepath.Join(root, "firefly-iii"),
		},
		Packages:     &fakePackages{},
		Database:     &fakeDatabase{databases: map[string]bool{}, users: map[string]bool{}},
		Web:          &fakeServer{dir: t.TempDir()},
		Certs:        fakeIssuer{},
		PHP:          runner,
		Creds:        creds,
		CronFilePath: filepath.Join(root, "cron.d", "firefly-install"),
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(o.CronFilePath), 0o755))

	app := &orchestrator.App{
		Name:     "Firefly III",
		SiteName: "firefly-iii",
		Dir:      o.Config.FireflyDir,
		Source:   src,
		Primary:  true,
		EnvKeys:  []string{"APP_KEY", "DB_PASSWORD"},
	}

	return o, app, runner
}

func TestInstallThenUpToDate(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tag: "v6.1.5", archive: releaseFiles("6.1.5"), manifest: `{"require":{"php":">=8.2"}}`}
	o, app, runner := newOrchestrator(t, src)

	// A fresh host has nothing installed.
	state, err := o.Decide(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateNotInstalled, state)

	state, err = o.Install(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateConfigured, state)

	// The dotenv file got real values in place of the placeholders.
	content, err := os.ReadFile(filepath.Join(app.Dir, ".env"))
	require.NoError(t, err)
	require.NotContains(t, string(content), "SomeRandomStringOf32CharsExactly")
	require.Contains(t, string(content), "DB_PASSWORD="+o.Creds.DBPass)

	// The configured engine's server package was part of the base install.
	pkgs := o.Packages.(*fakePackages)
	require.Contains(t, pkgs.installed[0], "mariadb-server")

	// Database, user and cron entry were created.
	db := o.Database.(*fakeDatabase)
	require.True(t, db.databases["firefly"])

	cron, err := os.ReadFile(o.CronFilePath)
	require.NoError(t, err)
	require.Contains(t, string(cron), "0 3 * * * root")

	// Migration and the maintenance commands ran.
	require.Equal(t, []string{"migrate", "--force", "--no-interaction"}, runner.artisan[0])

	// An immediate re-run finds a healthy, current installation.
	state, err = o.Decide(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateUpToDate, state)
}

func TestUpdateSuccess(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tag: "v6.1.5", archive: releaseFiles("6.1.5"), manifest: `{"require":{"php":">=8.2"}}`}
	o, app, _ := newOrchestrator(t, src)

	_, err := o.Install(context.Background(), app)
	require.NoError(t, err)

	src.tag = "v6.2.0"
	src.archive = releaseFiles("6.2.0")

	state, err := o.Decide(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateUpdateAvailable, state)

	state, err = o.Update(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateUpdated, state)

	// The new release is live and the carried-over configuration survived.
	content, err := os.ReadFile(filepath.Join(app.Dir, "config/firefly.php"))
	require.NoError(t, err)
	require.Contains(t, string(content), "6.2.0")

	env, err := os.ReadFile(filepath.Join(app.Dir, ".env"))
	require.NoError(t, err)
	require.Contains(t, string(env), "DB_PASSWORD="+o.Creds.DBPass)
}

func TestUpdateRollsBackOnMigrationFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tag: "v6.1.5", archive: releaseFiles("6.1.5"), manifest: `{"require":{"php":">=8.2"}}`}
	o, app, runner := newOrchestrator(t, src)

	_, err := o.Install(context.Background(), app)
	require.NoError(t, err)

	before, err := os.ReadFile(filepath.Join(app.Dir, "config/firefly.php"))
	require.NoError(t, err)

	src.tag = "v6.2.0"
	src.archive = releaseFiles("6.2.0")
	runner.failMigrate = true

	state, err := o.Update(context.Background(), app)
	require.Error(t, err)
	require.Equal(t, orchestrator.StateRolledBack, state)

	// The pre-update installation is back in place.
	after, err := os.ReadFile(filepath.Join(app.Dir, "config/firefly.php"))
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestUpdateDeclined(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tag: "v6.1.5", archive: releaseFiles("6.1.5"), manifest: `{"require":{"php":">=8.2"}}`}
	o, app, _ := newOrchestrator(t, src)

	_, err := o.Install(context.Background(), app)
	require.NoError(t, err)

	o.Config.NonInteractive = false
	o.Confirm = func(_ string) (bool, error) { return false, nil }

	_, err = o.Update(context.Background(), app)
	require.ErrorIs(t, err, orchestrator.ErrDeclined)
}

func TestAcquireLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	lock, err := orchestrator.AcquireLock(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = orchestrator.AcquireLock(path)
	require.ErrorIs(t, err, orchestrator.ErrLocked)
}
