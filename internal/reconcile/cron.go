package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ErrInvalidSchedule is returned when a cron expression fails validation.
var ErrInvalidSchedule = errors.New("invalid cron expression")

// CronFile manages a single installer-owned file under /etc/cron.d. Entries
// are matched by exact line, so an unchanged entry is never rewritten.
type CronFile struct {
	// Path is the crontab file, typically /etc/cron.d/firefly-install.
	Path string
}

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	err := gocron.NewDefaultCron(false).IsValid(schedule, time.UTC, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
	}

	return nil
}

// EnsureEntry appends a crontab line for the command unless an identical line
// is already present.
func (c *CronFile) EnsureEntry(schedule string, user string, command string) (Outcome, error) {
	err := ValidateSchedule(schedule)
	if err != nil {
		return "", err
	}

	line := schedule + " " + user + " " + command

	content, err := os.ReadFile(c.Path)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	for existing := range strings.Lines(string(content)) {
		if strings.TrimRight(existing, "\n") == line {
			slog.Info("Cron entry already present", "file", c.Path, "schedule", schedule)

			return Unchanged, nil
		}
	}

	var buf bytes.Buffer

	buf.Write(content)

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		buf.WriteString("\n")
	}

	buf.WriteString(line + "\n")

	// Cron files under /etc/cron.d must be root owned and not group writable.
	err = os.WriteFile(c.Path, buf.Bytes(), 0o644)
	if err != nil {
		return "", fmt.Errorf("unable to write crontab %q: %w", c.Path, err)
	}

	slog.Info("Added cron entry", "file", c.Path, "schedule", schedule)

	return Created, nil
}
