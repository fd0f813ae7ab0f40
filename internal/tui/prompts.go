package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lxc/incus/v6/shared/ask"

	"github.com/0ldeuboi/firefly-sub000/internal/config"
	"github.com/0ldeuboi/firefly-sub000/internal/vault"
)

// PromptConfig walks the operator through the configuration questions,
// filling in anything the environment didn't provide. Values already present
// in the configuration become the prompt defaults.
func PromptConfig(asker ask.Asker, cfg *config.RunConfig) error {
	hasDomain, err := asker.AskBool("Serve over a public domain with TLS? [y/N] ", boolDefault(cfg.HasDomain, "n"))
	if err != nil {
		return err
	}

	cfg.HasDomain = hasDomain

	if cfg.HasDomain {
		cfg.DomainName, err = asker.AskString("Domain name: ", cfg.DomainName, nonEmpty)
		if err != nil {
			return err
		}

		cfg.EmailAddress, err = asker.AskString("Email address for certificate notices: ", cfg.EmailAddress, nonEmpty)
		if err != nil {
			return err
		}
	}

	cfg.DBEngine, err = asker.AskChoice("Database engine (mariadb or mysql) [mariadb]: ",
		[]string{config.EngineMariaDB, config.EngineMySQL}, defaultString(cfg.DBEngine, config.EngineMariaDB))
	if err != nil {
		return err
	}

	cfg.DBName, err = asker.AskString("Database name [firefly]: ", defaultString(cfg.DBName, "firefly"), nil)
	if err != nil {
		return err
	}

	cfg.DBUser, err = asker.AskString("Database user [firefly]: ", defaultString(cfg.DBUser, "firefly"), nil)
	if err != nil {
		return err
	}

	cfg.DBPass, err = asker.AskString("Database password [generate]: ", cfg.DBPass, func(_ string) error { return nil })
	if err != nil {
		return err
	}

	cronHour, err := asker.AskInt(fmt.Sprintf("Hour for the daily scheduled jobs (0-23) [%d]: ", cfg.CronHour), 0, 23, fmt.Sprintf("%d", cfg.CronHour), nil)
	if err != nil {
		return err
	}

	cfg.CronHour = int(cronHour)

	return nil
}

// PromptPassphrase asks for an optional credentials-file passphrase. An
// empty answer means the file stays plaintext; a weak passphrase is rejected
// and asked again.
func PromptPassphrase(asker ask.Asker) (string, error) {
	for {
		passphrase, err := asker.AskString("Passphrase to encrypt the credentials file (empty for plaintext): ", "", func(_ string) error { return nil })
		if err != nil {
			return "", err
		}

		if passphrase == "" {
			return "", nil
		}

		err = vault.CheckPassphrase(passphrase)
		if err != nil {
			fmt.Println("Passphrase rejected: " + err.Error()) //nolint:forbidigo

			continue
		}

		return passphrase, nil
	}
}

func nonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("a value is required")
	}

	return nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func boolDefault(value bool, fallback string) string {
	if value {
		return "y"
	}

	return fallback
}
