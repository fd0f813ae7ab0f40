// Package sysdeps wraps the system package manager.
package sysdeps

import (
	"context"
	"os"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"
)

// Manager is the package-manager capability the orchestrator consumes.
type Manager interface {
	// CandidateVersions returns the versions the repositories can install
	// for the given package.
	CandidateVersions(ctx context.Context, pkg string) ([]string, error)

	// Install installs the given packages non-interactively.
	Install(ctx context.Context, packages ...string) error

	// EnablePHPRepository adds the PHP package repository needed for
	// runtime versions the distribution doesn't carry.
	EnablePHPRepository(ctx context.Context) error
}

// Apt is the apt-backed package manager.
type Apt struct{}

// CandidateVersions parses `apt-cache madison` output. Lines look like
// `php8.2 | 8.2.7-1ubuntu1 | http://... jammy/main amd64 Packages`.
func (*Apt) CandidateVersions(ctx context.Context, pkg string) ([]string, error) {
	output, err := subprocess.RunCommandContext(ctx, "apt-cache", "madison", pkg)
	if err != nil {
		return nil, err
	}

	return parseMadison(output), nil
}

func parseMadison(output string) []string {
	versions := []string{}
	seen := map[string]bool{}

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}

		// Strip the epoch and the debian revision.
		v := strings.TrimSpace(fields[1])

		_, after, found := strings.Cut(v, ":")
		if found {
			v = after
		}

		v, _, _ = strings.Cut(v, "-")
		v, _, _ = strings.Cut(v, "+")

		if v != "" && !seen[v] {
			seen[v] = true

			versions = append(versions, v)
		}
	}

	return versions
}

func (*Apt) Install(ctx context.Context, packages ...string) error {
	args := []string{"install", "-y"}
	args = append(args, packages...)

	env := append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")

	_, _, err := subprocess.RunCommandSplit(ctx, env, nil, "apt-get", args...)
	if err != nil {
		return err
	}

	return nil
}

// EnablePHPRepository adds the ondrej/php PPA and refreshes the package lists.
func (*Apt) EnablePHPRepository(ctx context.Context) error {
	_, err := subprocess.RunCommandContext(ctx, "add-apt-repository", "-y", "ppa:ondrej/php")
	if err != nil {
		return err
	}

	_, err = subprocess.RunCommandContext(ctx, "apt-get", "update")
	if err != nil {
		return err
	}

	return nil
}
