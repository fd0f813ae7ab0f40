// Package database wraps the host's MySQL/MariaDB client binary. The
// installer authenticates as root over the local socket, which is why the
// engine's own client is used instead of a network driver.
package database

import (
	"context"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"
)

// Client is the database capability the reconciler consumes.
type Client interface {
	// Exec runs a single SQL statement.
	Exec(ctx context.Context, statement string) error

	// DatabaseExists reports whether the named database exists.
	DatabaseExists(ctx context.Context, name string) (bool, error)

	// UserExists reports whether the named user exists for localhost.
	UserExists(ctx context.Context, name string) (bool, error)

	// Ping reports whether the server is reachable at all.
	Ping(ctx context.Context) bool
}

// MySQL talks to the local server through the mysql client binary.
type MySQL struct{}

func (*MySQL) Exec(ctx context.Context, statement string) error {
	_, err := subprocess.RunCommandContext(ctx, "mysql", "-N", "-B", "-e", statement)

	return err
}

func (*MySQL) DatabaseExists(ctx context.Context, name string) (bool, error) {
	output, err := subprocess.RunCommandContext(ctx, "mysql", "-N", "-B", "-e",
		"SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = '"+Escape(name)+"'")
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(output) == name, nil
}

func (*MySQL) UserExists(ctx context.Context, name string) (bool, error) {
	output, err := subprocess.RunCommandContext(ctx, "mysql", "-N", "-B", "-e",
		"SELECT User FROM mysql.user WHERE User = '"+Escape(name)+"' AND Host = 'localhost'")
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(output) == name, nil
}

func (*MySQL) Ping(ctx context.Context) bool {
	_, err := subprocess.RunCommandContext(ctx, "mysqladmin", "status")

	return err == nil
}

// Escape protects single-quoted SQL string literals. Credentials generated
// by this tool never contain quotes, but operator provided names and
// passwords pass through here too.
func Escape(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)

	return strings.ReplaceAll(value, "'", `\'`)
}

// QuoteIdentifier wraps a schema object name in backticks, doubling any
// backtick inside it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
