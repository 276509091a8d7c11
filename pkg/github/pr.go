package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

const openPullRequestsQuery = `query($owner: String!, $repo: String!, $after: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(states: OPEN, first: 100, after: $after) {
      pageInfo { endCursor hasNextPage }
      nodes {
        number
        additions
        deletions
        author { login }
        reviewRequests(first: 100) {
          nodes { requestedReviewer { ... on User { login } } }
        }
        latestReviews(first: 100) {
          nodes { author { login } }
        }
      }
    }
  }
}`

const recentReviewsQuery = `query($q: String!, $login: String!, $after: String) {
  search(query: $q, type: ISSUE, first: 50, after: $after) {
    pageInfo { endCursor hasNextPage }
    nodes {
      ... on PullRequest {
        number
        reviews(author: $login, first: 100) {
          pageInfo { hasNextPage }
          nodes { author { login } submittedAt }
        }
      }
    }
  }
}`

type actor struct {
	Login string `json:"login"`
}

// login tolerates deleted ("ghost") accounts, which GraphQL reports as null.
func (a *actor) login() string {
	if a == nil {
		return ""
	}
	return a.Login
}

// OpenPullRequests returns one page of open pull requests in owner/repo.
// Concurrent requests for the same page share one round trip, since every
// candidate of a selection run walks the same listing. Nothing is kept once
// the request completes.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo, cursor string) (types.Page[types.PullRequestRef], error) {
	key := fmt.Sprintf("open-prs:%s/%s:%s", owner, repo, cursor)
	v, err, shared := c.flight.Do(key, func() (any, error) {
		return c.fetchOpenPullRequests(ctx, owner, repo, cursor)
	})
	if err != nil {
		return types.Page[types.PullRequestRef]{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Shared in-flight open PR page", "component", "api", "owner", owner, "repo", repo, "cursor", cursor)
	}
	page, ok := v.(types.Page[types.PullRequestRef])
	if !ok {
		return types.Page[types.PullRequestRef]{}, fmt.Errorf("%w: unexpected page type %T", types.ErrGatewayUnavailable, v)
	}
	return page, nil
}

func (c *Client) fetchOpenPullRequests(ctx context.Context, owner, repo, cursor string) (types.Page[types.PullRequestRef], error) {
	variables := map[string]any{
		"owner": owner,
		"repo":  repo,
		"after": nullable(cursor),
	}

	var data struct {
		Repository *struct {
			PullRequests struct {
				Nodes []struct {
					Author         *actor `json:"author"`
					ReviewRequests struct {
						Nodes []struct {
							RequestedReviewer *actor `json:"requestedReviewer"`
						} `json:"nodes"`
					} `json:"reviewRequests"`
					LatestReviews struct {
						Nodes []struct {
							Author *actor `json:"author"`
						} `json:"nodes"`
					} `json:"latestReviews"`
					Number    int `json:"number"`
					Additions int `json:"additions"`
					Deletions int `json:"deletions"`
				} `json:"nodes"`
				PageInfo pageInfo `json:"pageInfo"`
			} `json:"pullRequests"`
		} `json:"repository"`
	}
	if err := c.graphQL(ctx, "open-pull-requests", owner, repo, openPullRequestsQuery, variables, &data); err != nil {
		return types.Page[types.PullRequestRef]{}, err
	}
	if data.Repository == nil {
		return types.Page[types.PullRequestRef]{}, fmt.Errorf("%w: repository %s/%s", types.ErrNotFound, owner, repo)
	}

	nodes := data.Repository.PullRequests.Nodes
	refs := make([]types.PullRequestRef, 0, len(nodes))
	for _, n := range nodes {
		ref := types.PullRequestRef{
			Number:       n.Number,
			Author:       n.Author.login(),
			ChangedLines: n.Additions + n.Deletions,
		}
		for _, rr := range n.ReviewRequests.Nodes {
			// Team requests decode to an empty login.
			if login := rr.RequestedReviewer.login(); login != "" {
				ref.RequestedReviewers = append(ref.RequestedReviewers, login)
			}
		}
		for _, r := range n.LatestReviews.Nodes {
			if login := r.Author.login(); login != "" {
				ref.SubmittedReviewers = append(ref.SubmittedReviewers, login)
			}
		}
		refs = append(refs, ref)
	}

	slog.InfoContext(ctx, "Fetched open PR page", "component", "api", "owner", owner, "repo", repo, "count", len(refs))
	return types.Page[types.PullRequestRef]{Items: refs, NextCursor: data.Repository.PullRequests.PageInfo.next()}, nil
}

// RecentReviews returns one page of reviews login submitted in owner/repo on
// pull requests updated since the given time. Events older than since may be
// included; callers filter on SubmittedAt.
func (c *Client) RecentReviews(
	ctx context.Context, owner, repo, login string, since time.Time, cursor string,
) (types.Page[types.ReviewEvent], error) {
	search := fmt.Sprintf("repo:%s/%s is:pr reviewed-by:%s updated:>=%s", owner, repo, login, since.UTC().Format(time.DateOnly))
	variables := map[string]any{
		"q":     search,
		"login": login,
		"after": nullable(cursor),
	}

	var data struct {
		Search struct {
			Nodes []struct {
				Reviews struct {
					Nodes []struct {
						Author      *actor     `json:"author"`
						SubmittedAt *time.Time `json:"submittedAt"`
					} `json:"nodes"`
					PageInfo pageInfo `json:"pageInfo"`
				} `json:"reviews"`
				Number int `json:"number"`
			} `json:"nodes"`
			PageInfo pageInfo `json:"pageInfo"`
		} `json:"search"`
	}
	if err := c.graphQL(ctx, "recent-reviews", owner, repo, recentReviewsQuery, variables, &data); err != nil {
		return types.Page[types.ReviewEvent]{}, err
	}

	var events []types.ReviewEvent
	for _, n := range data.Search.Nodes {
		if n.Reviews.PageInfo.HasNextPage {
			slog.DebugContext(ctx, "Review count capped for PR", "component", "api", "owner", owner, "repo", repo,
				"login", login, "pr", n.Number, "counted", len(n.Reviews.Nodes))
		}
		for _, r := range n.Reviews.Nodes {
			// Pending reviews have no submission time.
			if r.SubmittedAt == nil {
				continue
			}
			events = append(events, types.ReviewEvent{
				Reviewer:    r.Author.login(),
				SubmittedAt: *r.SubmittedAt,
				PRNumber:    n.Number,
			})
		}
	}

	slog.InfoContext(ctx, "Fetched recent review page", "component", "api", "owner", owner, "repo", repo, "login", login, "reviews", len(events))
	return types.Page[types.ReviewEvent]{Items: events, NextCursor: data.Search.PageInfo.next()}, nil
}

// PullRequest fetches a single pull request.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	slog.InfoContext(ctx, "Fetching PR details", "component", "api", "owner", owner, "repo", repo, "pr", number)
	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.apiURL, owner, repo, number)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, owner, repo, nil)
	if err != nil {
		return nil, err
	}
	defer drainAndCloseBody(resp.Body)

	var prData struct {
		Title string `json:"title"`
		State string `json:"state"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
		RequestedReviewers []struct {
			Login string `json:"login"`
		} `json:"requested_reviewers"`
		Number int  `json:"number"`
		Draft  bool `json:"draft"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&prData); err != nil {
		return nil, fmt.Errorf("%w: decode pull request: %w", types.ErrGatewayUnavailable, err)
	}

	pr := &types.PullRequest{
		Owner:  owner,
		Repo:   repo,
		Number: prData.Number,
		Title:  prData.Title,
		State:  prData.State,
		Author: prData.User.Login,
		Draft:  prData.Draft,
	}
	for _, r := range prData.RequestedReviewers {
		pr.Reviewers = append(pr.Reviewers, r.Login)
	}
	return pr, nil
}

// AddReviewers requests reviews from reviewers on a pull request.
func (c *Client) AddReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.apiURL, owner, repo, number)
	payload := map[string]any{"reviewers": reviewers}

	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, owner, repo, payload)
	if err != nil {
		return fmt.Errorf("failed to add reviewers: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	slog.InfoContext(ctx, "Added reviewers to PR", "owner", owner, "repo", repo, "pr", number, "reviewers", reviewers)
	return nil
}

// nullable maps an empty cursor to a GraphQL null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
