package reviewer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/cache"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// RecentWindow is the lookback for counting submitted reviews.
const RecentWindow = 7 * 24 * time.Hour

// runPageTTL outlives any single selection run; the memo is dropped with its Aggregator.
const runPageTTL = time.Hour

// Gateway supplies paginated pull request and review data.
// An empty cursor requests the first page.
type Gateway interface {
	OpenPullRequests(ctx context.Context, owner, repo, cursor string) (types.Page[types.PullRequestRef], error)
	RecentReviews(ctx context.Context, owner, repo, login string, since time.Time, cursor string) (types.Page[types.ReviewEvent], error)
}

// Aggregator builds workload snapshots for individual candidates. Open PR
// pages are remembered for the Aggregator's lifetime so that every candidate
// of a run is scored against the same listing; create one per run.
type Aggregator struct {
	gateway Gateway
	coord   *ratelimit.Coordinator
	openPRs *cache.Cache[types.Page[types.PullRequestRef]]
	owner   string
	repo    string
	// countSubmitted also counts open PRs the candidate has already reviewed.
	countSubmitted bool
}

// NewAggregator creates an aggregator for one repository. All page requests go
// through coord, which should be shared by every concurrent aggregation.
func NewAggregator(gw Gateway, coord *ratelimit.Coordinator, owner, repo string, countSubmitted bool) *Aggregator {
	return &Aggregator{
		gateway:        gw,
		coord:          coord,
		openPRs:        cache.New[types.Page[types.PullRequestRef]](runPageTTL),
		owner:          owner,
		repo:           repo,
		countSubmitted: countSubmitted,
	}
}

// Snapshot walks every open PR page and every recent review page for login.
// It returns an error rather than a partial snapshot.
func (a *Aggregator) Snapshot(ctx context.Context, login string, since time.Time) (types.WorkloadSnapshot, error) {
	var snap types.WorkloadSnapshot

	prs := pages(ctx, a.coord, "open-pull-requests", a.openPRs, func(ctx context.Context, cursor string) (types.Page[types.PullRequestRef], error) {
		return a.gateway.OpenPullRequests(ctx, a.owner, a.repo, cursor)
	})
	for batch, err := range prs {
		if err != nil {
			return types.WorkloadSnapshot{}, fmt.Errorf("open pull requests for %s: %w", login, err)
		}
		for _, pr := range batch {
			if !a.reviewing(pr, login) {
				continue
			}
			snap.OpenPRCount++
			snap.TotalLines += max(pr.ChangedLines, 0)
			slog.DebugContext(ctx, "Candidate reviewing open PR", "login", login, "pr", pr.Number, "lines", pr.ChangedLines)
		}
	}

	reviews := pages(ctx, a.coord, "recent-reviews", nil, func(ctx context.Context, cursor string) (types.Page[types.ReviewEvent], error) {
		return a.gateway.RecentReviews(ctx, a.owner, a.repo, login, since, cursor)
	})
	for batch, err := range reviews {
		if err != nil {
			return types.WorkloadSnapshot{}, fmt.Errorf("recent reviews for %s: %w", login, err)
		}
		for _, ev := range batch {
			if ev.Reviewer == login && !ev.SubmittedAt.Before(since) {
				snap.RecentReviewCount++
			}
		}
	}

	slog.InfoContext(ctx, "Workload snapshot", "component", "aggregator", "login", login,
		"open_prs", snap.OpenPRCount, "lines", snap.TotalLines, "recent_reviews", snap.RecentReviewCount)
	return snap, nil
}

// reviewing reports whether login carries review load for pr. A PR counts once
// even when the login is both requested and has already reviewed.
func (a *Aggregator) reviewing(pr types.PullRequestRef, login string) bool {
	for _, r := range pr.RequestedReviewers {
		if r == login {
			return true
		}
	}
	if !a.countSubmitted {
		return false
	}
	for _, r := range pr.SubmittedReviewers {
		if r == login {
			return true
		}
	}
	return false
}

// pages lazily requests one page at a time through the coordinator, following
// cursors until an empty page or an empty cursor. Each range over the returned
// sequence starts again from the first page. When memo is not nil, pages it
// holds are served without a request and fetched pages are added to it.
func pages[T any](
	ctx context.Context,
	coord *ratelimit.Coordinator,
	operation string,
	memo *cache.Cache[types.Page[T]],
	fetch func(ctx context.Context, cursor string) (types.Page[T], error),
) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		cursor := ""
		for n := 1; ; n++ {
			page, err := fetchPage(ctx, coord, operation, memo, n, cursor, fetch)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.Items) == 0 {
				return
			}
			if !yield(page.Items, nil) {
				return
			}
			if page.NextCursor == "" {
				return
			}
			if page.NextCursor == cursor {
				yield(nil, fmt.Errorf("%w: %s cursor did not advance past %q", types.ErrGatewayUnavailable, operation, cursor))
				return
			}
			cursor = page.NextCursor
		}
	}
}

func fetchPage[T any](
	ctx context.Context,
	coord *ratelimit.Coordinator,
	operation string,
	memo *cache.Cache[types.Page[T]],
	n int,
	cursor string,
	fetch func(ctx context.Context, cursor string) (types.Page[T], error),
) (types.Page[T], error) {
	if memo != nil {
		if page, ok := memo.Get(cursor); ok {
			return page, nil
		}
	}

	slog.DebugContext(ctx, "Requesting page", "operation", operation, "page", n, "cursor", cursor)
	var page types.Page[T]
	err := coord.Do(ctx, operation, func(ctx context.Context) error {
		var err error
		page, err = fetch(ctx, cursor)
		return err
	})
	if err != nil {
		return types.Page[T]{}, fmt.Errorf("page %d: %w", n, err)
	}
	if memo != nil {
		memo.Set(cursor, page)
	}
	return page, nil
}
