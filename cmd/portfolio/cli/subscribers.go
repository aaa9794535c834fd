package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alshekh/portfolio/internal/newsletter"
)

// SubscriberStore is the slice of the subscriber repository used by operators.
type SubscriberStore interface {
	Deactivate(ctx context.Context, email string) error
	Stats(ctx context.Context) (newsletter.Stats, error)
}

// SubscribersCLI bundles subscriber maintenance commands.
type SubscribersCLI struct {
	store SubscriberStore
}

// NewSubscribersCLI wraps store.
func NewSubscribersCLI(store SubscriberStore) (*SubscribersCLI, error) {
	if store == nil {
		return nil, errors.New("subscribers cli: store is required")
	}
	return &SubscribersCLI{store: store}, nil
}

// DeactivateOptions defines the inputs of the deactivate command.
type DeactivateOptions struct {
	Email  string
	Stdout io.Writer
	Stderr io.Writer
}

// DeactivateCommand marks a subscriber inactive. Exit code 2 means the
// address is unknown.
func (c *SubscribersCLI) DeactivateCommand(ctx context.Context, opts DeactivateOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	email := newsletter.NormalizeEmail(opts.Email)
	if email == "" {
		_, _ = fmt.Fprintln(stderr, "deactivate: email is required")
		return 1
	}
	if err := c.store.Deactivate(ctx, email); err != nil {
		if errors.Is(err, newsletter.ErrNotFound) {
			_, _ = fmt.Fprintf(stderr, "deactivate: no subscriber %q\n", email)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "deactivate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "deactivated %s\n", email)
	return 0
}

// StatsOptions defines the inputs of the stats command.
type StatsOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type statsSummary struct {
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Total    int64 `json:"total"`
}

// StatsCommand prints subscriber counts.
func (c *SubscribersCLI) StatsCommand(ctx context.Context, opts StatsOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	stats, err := c.store.Stats(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "stats: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		summary := statsSummary{Active: stats.Active, Inactive: stats.Inactive, Total: stats.Total()}
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "active:   %d\ninactive: %d\ntotal:    %d\n", stats.Active, stats.Inactive, stats.Total())
	return 0
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
