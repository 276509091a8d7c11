// Package testutil provides mock implementations and testing utilities for the reviewer assignment module.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// MockGateway is a programmable in-memory remote data gateway.
type MockGateway struct {
	openPRs      map[string][][]types.PullRequestRef
	reviews      map[string][][]types.ReviewEvent
	pullRequests map[string]*types.PullRequest
	failures     map[string]*failure
	delays       map[string]time.Duration
	reviewCalls  map[string]int
	since        []time.Time
	addCalls     []AddReviewersCall
	openCalls    int
	mu           sync.Mutex
}

type failure struct {
	err       error
	remaining int // negative means forever
}

// AddReviewersCall records a call to AddReviewers.
type AddReviewersCall struct {
	Owner     string
	Repo      string
	Reviewers []string
	PRNumber  int
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		openPRs:      make(map[string][][]types.PullRequestRef),
		reviews:      make(map[string][][]types.ReviewEvent),
		pullRequests: make(map[string]*types.PullRequest),
		failures:     make(map[string]*failure),
		delays:       make(map[string]time.Duration),
		reviewCalls:  make(map[string]int),
	}
}

// SetOpenPRPages configures the open PR pages of a repository.
func (m *MockGateway) SetOpenPRPages(owner, repo string, pages ...[]types.PullRequestRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPRs[owner+"/"+repo] = pages
}

// SetReviewPages configures the recent review pages returned for login.
func (m *MockGateway) SetReviewPages(login string, pages ...[]types.ReviewEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[login] = pages
}

// SetPullRequest configures a pull request returned by PullRequest.
func (m *MockGateway) SetPullRequest(pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[fmt.Sprintf("%s/%s/%d", pr.Owner, pr.Repo, pr.Number)] = pr
}

// FailOpenPRs makes the next times OpenPullRequests calls fail with err.
// A negative times fails forever.
func (m *MockGateway) FailOpenPRs(err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures["open"] = &failure{err: err, remaining: times}
}

// FailReviews makes the next times RecentReviews calls for login fail with err.
// A negative times fails forever.
func (m *MockGateway) FailReviews(login string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures["reviews:"+login] = &failure{err: err, remaining: times}
}

// SetReviewDelay delays every RecentReviews call for login.
func (m *MockGateway) SetReviewDelay(login string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[login] = d
}

// OpenPullRequests returns the configured page for cursor.
func (m *MockGateway) OpenPullRequests(ctx context.Context, owner, repo, cursor string) (types.Page[types.PullRequestRef], error) {
	m.mu.Lock()
	m.openCalls++
	err := m.takeFailure("open")
	pages, ok := m.openPRs[owner+"/"+repo]
	m.mu.Unlock()

	if err != nil {
		return types.Page[types.PullRequestRef]{}, err
	}
	if !ok {
		return types.Page[types.PullRequestRef]{}, fmt.Errorf("repository %s/%s: %w", owner, repo, types.ErrNotFound)
	}
	return pageAt(pages, cursor)
}

// RecentReviews returns the configured page for login and cursor.
func (m *MockGateway) RecentReviews(ctx context.Context, owner, repo, login string, since time.Time, cursor string) (types.Page[types.ReviewEvent], error) {
	m.mu.Lock()
	m.reviewCalls[login]++
	m.since = append(m.since, since)
	err := m.takeFailure("reviews:" + login)
	pages := m.reviews[login]
	delay := m.delays[login]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.Page[types.ReviewEvent]{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return types.Page[types.ReviewEvent]{}, err
	}
	return pageAt(pages, cursor)
}

// PullRequest returns a configured pull request.
func (m *MockGateway) PullRequest(_ context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pr, ok := m.pullRequests[fmt.Sprintf("%s/%s/%d", owner, repo, number)]
	if !ok {
		return nil, fmt.Errorf("pull request %s/%s#%d: %w", owner, repo, number, types.ErrNotFound)
	}
	return pr, nil
}

// AddReviewers records the call.
func (m *MockGateway) AddReviewers(_ context.Context, owner, repo string, prNumber int, reviewers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, AddReviewersCall{
		Owner:     owner,
		Repo:      repo,
		PRNumber:  prNumber,
		Reviewers: append([]string(nil), reviewers...),
	})
	return nil
}

// AddReviewersCalls returns the recorded AddReviewers calls.
func (m *MockGateway) AddReviewersCalls() []AddReviewersCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AddReviewersCall(nil), m.addCalls...)
}

// OpenPRCalls returns how many times OpenPullRequests was called.
func (m *MockGateway) OpenPRCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// ReviewCalls returns how many times RecentReviews was called for login.
func (m *MockGateway) ReviewCalls(login string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reviewCalls[login]
}

// SinceValues returns the since argument of every RecentReviews call.
func (m *MockGateway) SinceValues() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.since...)
}

// takeFailure must be called with m.mu held.
func (m *MockGateway) takeFailure(key string) error {
	f, ok := m.failures[key]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

func pageAt[T any](pages [][]T, cursor string) (types.Page[T], error) {
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return types.Page[T]{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		idx = n
	}
	if idx >= len(pages) {
		return types.Page[T]{}, nil
	}

	page := types.Page[T]{Items: pages[idx]}
	if idx+1 < len(pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}
