package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// pullRequestClient is the part of the GitHub client the action glue uses.
type pullRequestClient interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error)
	AddReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error
}

type reviewerSelector interface {
	SelectReviewer(ctx context.Context, cfg reviewer.Config, author string) (types.AssignmentResult, error)
}

// assigner runs one selection for a pull request and requests the review.
type assigner struct {
	prs      pullRequestClient
	selector reviewerSelector
	coord    *ratelimit.Coordinator
	out      io.Writer
	cfg      reviewer.Config
	dryRun   bool
}

// assign picks a reviewer for PR number. An empty author is looked up.
func (a *assigner) assign(ctx context.Context, number int, author string) (types.AssignmentResult, error) {
	owner, repo := a.cfg.Owner, a.cfg.Repo

	if author == "" {
		var pr *types.PullRequest
		err := a.coord.Do(ctx, "fetch pull request", func(ctx context.Context) error {
			var err error
			pr, err = a.prs.PullRequest(ctx, owner, repo, number)
			return err
		})
		if err != nil {
			return types.AssignmentResult{}, fmt.Errorf("look up author of #%d: %w", number, err)
		}
		author = pr.Author
		slog.InfoContext(ctx, "Resolved PR author", "owner", owner, "repo", repo, "pr", number, "author", author)
	}

	result, err := a.selector.SelectReviewer(ctx, a.cfg, author)
	if err != nil {
		return types.AssignmentResult{}, fmt.Errorf("select reviewer for #%d: %w", number, err)
	}

	if _, err := io.WriteString(a.out, formatRanking(number, author, a.cfg.Weights, result)); err != nil {
		slog.WarnContext(ctx, "Failed to write ranking", "error", err)
	}

	if result.NoneAvailable() {
		return result, nil
	}

	if a.dryRun {
		slog.InfoContext(ctx, "Would assign reviewer (dry-run)", "owner", owner, "repo", repo, "pr", number, "reviewer", result.Reviewer)
		return result, nil
	}

	err = a.coord.Do(ctx, "add reviewers", func(ctx context.Context) error {
		return a.prs.AddReviewers(ctx, owner, repo, number, []string{result.Reviewer})
	})
	if err != nil {
		return result, fmt.Errorf("request review from %s on #%d: %w", result.Reviewer, number, err)
	}

	slog.InfoContext(ctx, "Assigned reviewer", "owner", owner, "repo", repo, "pr", number, "reviewer", result.Reviewer)
	return result, nil
}
