// Package reviewer picks the least-loaded reviewer from a team.
package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/metrics"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds how many candidates are aggregated at once.
const defaultConcurrency = 8

// Finder selects reviewers. It is safe for concurrent use; each call to
// SelectReviewer is an independent run.
type Finder struct {
	gateway     Gateway
	coord       *ratelimit.Coordinator
	now         func() time.Time
	concurrency int
}

// Option customizes a Finder.
type Option func(*Finder)

// WithCoordinator shares coord with other users of the same API quota.
func WithCoordinator(coord *ratelimit.Coordinator) Option {
	return func(f *Finder) { f.coord = coord }
}

// WithClock overrides the time source used for the recent-review window.
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

// WithConcurrency bounds the number of candidates aggregated in parallel.
func WithConcurrency(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// New creates a Finder reading workload data from gw.
func New(gw Gateway, opts ...Option) *Finder {
	f := &Finder{
		gateway:     gw,
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.coord == nil {
		f.coord = ratelimit.New(ratelimit.DefaultPolicy())
	}
	return f
}

// SelectReviewer scores every team member except author and returns the least
// loaded one. Ties go to the member listed first in the roster. Any
// aggregation failure aborts the run and no result is returned.
func (f *Finder) SelectReviewer(ctx context.Context, cfg Config, author string) (types.AssignmentResult, error) {
	start := time.Now()
	result, err := f.selectReviewer(ctx, cfg, author)
	metrics.SelectionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.SelectionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	case result.NoneAvailable():
		metrics.SelectionsTotal.WithLabelValues(metrics.OutcomeNone).Inc()
	default:
		metrics.SelectionsTotal.WithLabelValues(metrics.OutcomeAssigned).Inc()
	}
	return result, err
}

func (f *Finder) selectReviewer(ctx context.Context, cfg Config, author string) (types.AssignmentResult, error) {
	if err := cfg.Validate(); err != nil {
		return types.AssignmentResult{}, err
	}

	candidates := cfg.Team.Without(author)
	if len(candidates) == 0 {
		slog.InfoContext(ctx, "No eligible reviewer", "author", author, "team_size", cfg.Team.Len())
		return types.AssignmentResult{}, nil
	}

	slog.InfoContext(ctx, "Scoring candidates", "owner", cfg.Owner, "repo", cfg.Repo,
		"author", author, "candidates", candidates)

	since := f.now().Add(-RecentWindow)
	agg := NewAggregator(f.gateway, f.coord, cfg.Owner, cfg.Repo, cfg.CountSubmittedReviews)

	// Each task writes only its own slot, so results stay in roster order
	// regardless of completion order.
	snapshots := make([]types.WorkloadSnapshot, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, login := range candidates {
		g.Go(func() error {
			snap, err := agg.Snapshot(gctx, login, since)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.AssignmentResult{}, ctxErr
		}
		return types.AssignmentResult{}, fmt.Errorf("aggregate workload: %w", err)
	}

	scores := make([]types.CandidateScore, len(candidates))
	for i, login := range candidates {
		scores[i] = types.CandidateScore{
			Login:    login,
			Snapshot: snapshots[i],
			Score:    Score(snapshots[i], cfg.Weights),
		}
		slog.InfoContext(ctx, "Candidate scored", "login", login, "score", scores[i].Score,
			"open_prs", snapshots[i].OpenPRCount, "lines", snapshots[i].TotalLines,
			"recent_reviews", snapshots[i].RecentReviewCount)
	}

	best := pickLowest(scores)
	slog.InfoContext(ctx, "Selected reviewer", "login", scores[best].Login, "score", scores[best].Score)
	return types.AssignmentResult{
		Reviewer: scores[best].Login,
		Scores:   scores,
	}, nil
}

// pickLowest returns the index of the strictly lowest score; the earliest
// index wins ties. scores must not be empty.
func pickLowest(scores []types.CandidateScore) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Score < scores[best].Score {
			best = i
		}
	}
	return best
}
