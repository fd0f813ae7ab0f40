// Package config resolves the immutable run configuration from the
// environment and an optional seed file, once, at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default installation locations and cron hour, matching the upstream layout.
const (
	DefaultFireflyDir  = "/var/www/firefly-iii"
	DefaultImporterDir = "/var/www/data-importer"
	DefaultCronHour    = 3
)

// Supported database engines. Both speak the same protocol; the choice only
// affects which server package gets installed.
const (
	EngineMariaDB = "mariadb"
	EngineMySQL   = "mysql"
)

// EnginePackage returns the distribution package that installs the configured
// database engine, defaulting to MariaDB.
func EnginePackage(engine string) string {
	if engine == EngineMySQL {
		return "mysql-server"
	}

	return "mariadb-server"
}

// RunConfig is resolved once at startup and passed by reference into every
// component. Mutable results (generated credentials, resolved versions) flow
// through return values, never through this struct.
type RunConfig struct {
	NonInteractive bool   `yaml:"non_interactive"`
	HasDomain      bool   `yaml:"has_domain"`
	DomainName     string `yaml:"domain_name"`
	EmailAddress   string `yaml:"email_address"`

	// Database credentials; empty values are generated at install time.
	DBEngine string `yaml:"db_engine"`
	DBName   string `yaml:"db_name"`
	DBUser   string `yaml:"db_user"`
	DBPass   string `yaml:"db_pass"`

	CronHour    int    `yaml:"cron_hour"`
	GithubToken string `yaml:"github_token"`

	// PHPVersion pins the runtime instead of resolving it from the
	// release's requirement.
	PHPVersion string `yaml:"php_version"`

	FireflyDir  string `yaml:"firefly_install_dir"`
	ImporterDir string `yaml:"importer_install_dir"`
}

// Load builds the run configuration. Values come from the optional seed file
// first, then from environment variables, which take precedence.
func Load(seedPath string) (*RunConfig, error) {
	cfg := &RunConfig{
		DBEngine:    EngineMariaDB,
		CronHour:    DefaultCronHour,
		FireflyDir:  DefaultFireflyDir,
		ImporterDir: DefaultImporterDir,
	}

	if seedPath != "" {
		body, err := os.ReadFile(seedPath) //nolint:gosec
		if err != nil {
			return nil, errors.New("unable to read config file: " + err.Error())
		}

		err = yaml.Unmarshal(body, cfg)
		if err != nil {
			return nil, errors.New("unable to parse config file: " + err.Error())
		}
	}

	err := cfg.applyEnvironment()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *RunConfig) applyEnvironment() error {
	for _, entry := range []struct {
		name   string
		target *string
	}{
		{"DOMAIN_NAME", &c.DomainName},
		{"EMAIL_ADDRESS", &c.EmailAddress},
		{"DB_ENGINE", &c.DBEngine},
		{"DB_NAME", &c.DBName},
		{"DB_USER", &c.DBUser},
		{"DB_PASS", &c.DBPass},
		{"GITHUB_TOKEN", &c.GithubToken},
		{"PHP_VERSION", &c.PHPVersion},
		{"FIREFLY_INSTALL_DIR", &c.FireflyDir},
		{"IMPORTER_INSTALL_DIR", &c.ImporterDir},
	} {
		value, ok := os.LookupEnv(entry.name)
		if ok {
			*entry.target = value
		}
	}

	for _, entry := range []struct {
		name   string
		target *bool
	}{
		{"NON_INTERACTIVE", &c.NonInteractive},
		{"HAS_DOMAIN", &c.HasDomain},
	} {
		value, ok := os.LookupEnv(entry.name)
		if ok {
			*entry.target = parseBool(value)
		}
	}

	value, ok := os.LookupEnv("CRON_HOUR")
	if ok {
		hour, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return errors.New("CRON_HOUR must be an integer between 0 and 23")
		}

		c.CronHour = hour
	}

	return nil
}

// Validate enforces required fields before any mutating step runs.
func (c *RunConfig) Validate() error {
	if c.CronHour < 0 || c.CronHour > 23 {
		return fmt.Errorf("cron hour %d is outside the range 0-23", c.CronHour)
	}

	if c.DBEngine != EngineMariaDB && c.DBEngine != EngineMySQL {
		return fmt.Errorf("unknown database engine %q, expected %q or %q", c.DBEngine, EngineMariaDB, EngineMySQL)
	}

	if c.HasDomain {
		if c.DomainName == "" {
			return errors.New("a domain was requested but DOMAIN_NAME is not set")
		}

		if c.EmailAddress == "" {
			return errors.New("a domain was requested but EMAIL_ADDRESS is not set")
		}
	}

	if c.FireflyDir == "" || c.ImporterDir == "" {
		return errors.New("installation directories must not be empty")
	}

	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
