// Package main implements a GitHub Action that requests a review from the
// least-loaded member of a team.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/github"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"golang.org/x/sync/errgroup"
)

var (
	dryRun  = flag.Bool("dry-run", false, "Select and report a reviewer without requesting the review")
	verbose = flag.Bool("v", false, "Verbose output with per-request diagnostics")
	timeout = flag.Duration("timeout", 10*time.Minute, "Deadline for a single selection run")
	watch   = flag.Bool("watch", false, "Stay running and assign reviewers as pull request events arrive")
	addr    = flag.String("addr", ":8080", "Listen address for /healthz and /metrics in watch mode")
)

// options are the command-line switches.
type options struct {
	addr    string
	timeout time.Duration
	dryRun  bool
	watch   bool
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Requests a review from the team member with the lowest review workload.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  INPUT_GITHUB_TOKEN            - Token used for API calls (falls back to GITHUB_TOKEN)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_TEAM_MEMBERS            - Comma-separated candidate logins (required)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_WEIGHT_OPEN_PRS         - Weight per open PR awaiting review (default: 10)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_WEIGHT_LINES_PER_100    - Weight per 100 changed lines (default: 1)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_WEIGHT_RECENT_REVIEWS   - Weight per review in the last 7 days (default: 3)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_COUNT_SUBMITTED_REVIEWS - Also count open PRs already reviewed (default: false)\n")
		fmt.Fprintf(os.Stderr, "  INPUT_MAX_ATTEMPTS            - Attempts per rate-limited request (default: 5)\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_ID                 - GitHub App ID (enables App authentication)\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY                - GitHub App private key (PEM content)\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY_PATH           - Path to GitHub App private key file\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_API_URL                - API base URL for GitHub Enterprise (default: https://api.github.com)\n")
	}
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	opts := options{addr: *addr, timeout: *timeout, dryRun: *dryRun, watch: *watch}
	err := run(ctx, opts, os.Getenv, os.Stdout)
	stop()
	if err != nil {
		slog.Error("Reviewer assignment failed", "error", err)
		if errors.Is(err, types.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, getenv func(string) string, out io.Writer) error {
	st, err := loadSettings(getenv)
	if err != nil {
		return err
	}

	client, err := github.New(ctx, st.github)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	coord := ratelimit.New(st.policy)
	a := &assigner{
		prs:      client,
		selector: reviewer.New(client, reviewer.WithCoordinator(coord)),
		coord:    coord,
		out:      out,
		cfg:      st.reviewer,
		dryRun:   opts.dryRun,
	}

	if opts.watch {
		owner, repo := st.reviewer.Owner, st.reviewer.Repo
		w := newWatcher(a, opts.timeout, func(ctx context.Context) (string, error) {
			return client.Token(ctx, owner, repo)
		})
		return runWatch(ctx, w, opts.addr)
	}

	number, author, err := readEvent(st.eventPath)
	if err != nil {
		return err
	}
	return runOnce(ctx, a, opts.timeout, number, author, st.outputPath)
}

// runOnce handles the single pull request that triggered the workflow.
func runOnce(ctx context.Context, a *assigner, timeout time.Duration, number int, author, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := a.assign(ctx, number, author)
	if err != nil {
		return err
	}
	if result.NoneAvailable() {
		slog.InfoContext(ctx, "No eligible reviewer", "pr", number, "author", author)
	}
	return writeGitHubOutput(outputPath, result.Reviewer)
}

// runWatch serves health and metrics while the watcher runs.
func runWatch(ctx context.Context, w *watcher, addr string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, newServer(addr, w.healthStatus))
	})
	g.Go(func() error {
		return w.run(ctx)
	})
	return g.Wait()
}
