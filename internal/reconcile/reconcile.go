// Package reconcile implements the ensure-exists pattern shared by every
// stateful side effect of the installer: check first, mutate only on
// absence, and make re-runs no-ops.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0ldeuboi/firefly-sub000/internal/certbot"
	"github.com/0ldeuboi/firefly-sub000/internal/database"
)

// Outcome describes what a reconciliation did.
type Outcome string

const (
	// Created means the resource was absent and has been brought into the
	// desired state.
	Created Outcome = "created"

	// Unchanged means the resource already matched the desired state and
	// nothing was mutated.
	Unchanged Outcome = "unchanged"
)

// EnsureDatabase creates the application database if it doesn't exist.
func EnsureDatabase(ctx context.Context, db database.Client, name string) (Outcome, error) {
	exists, err := db.DatabaseExists(ctx, name)
	if err != nil {
		return "", err
	}

	if exists {
		slog.Info("Database already exists", "database", name)

		return Unchanged, nil
	}

	err = db.Exec(ctx, "CREATE DATABASE "+database.QuoteIdentifier(name)+" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	if err != nil {
		return "", fmt.Errorf("unable to create database %q: %w", name, err)
	}

	slog.Info("Created database", "database", name)

	return Created, nil
}

// EnsureDatabaseUser creates the application's database user and grants it
// access to exactly one database.
func EnsureDatabaseUser(ctx context.Context, db database.Client, user string, password string, dbName string) (Outcome, error) {
	exists, err := db.UserExists(ctx, user)
	if err != nil {
		return "", err
	}

	if exists {
		slog.Info("Database user already exists", "user", user)

		return Unchanged, nil
	}

	err = db.Exec(ctx, fmt.Sprintf("CREATE USER '%s'@'localhost' IDENTIFIED BY '%s'",
		database.Escape(user), database.Escape(password)))
	if err != nil {
		return "", fmt.Errorf("unable to create database user %q: %w", user, err)
	}

	// Grant is scoped to the one application database, nothing wider.
	err = db.Exec(ctx, fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO '%s'@'localhost'",
		database.QuoteIdentifier(dbName), database.Escape(user)))
	if err != nil {
		return "", fmt.Errorf("unable to grant privileges to %q: %w", user, err)
	}

	err = db.Exec(ctx, "FLUSH PRIVILEGES")
	if err != nil {
		return "", err
	}

	slog.Info("Created database user", "user", user, "database", dbName)

	return Created, nil
}

// EnsureCertificate requests a TLS certificate for the domain unless one is
// already present. Issuance failure is fatal to the caller.
func EnsureCertificate(ctx context.Context, issuer certbot.Issuer, domain string, email string) (Outcome, error) {
	if issuer.HasCertificate(domain) {
		slog.Info("TLS certificate already present", "domain", domain)

		return Unchanged, nil
	}

	err := issuer.Issue(ctx, domain, email)
	if err != nil {
		return "", err
	}

	slog.Info("Issued TLS certificate", "domain", domain)

	return Created, nil
}
