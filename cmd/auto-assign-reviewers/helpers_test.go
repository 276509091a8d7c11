package main

import (
	"context"
	"sync"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// fakePRs serves pull requests from memory and records review requests.
type fakePRs struct {
	prs      map[int]*types.PullRequest
	added    map[int][]string
	fetchErr []error // returned in order before succeeding
	addErr   []error
	fetches  int
	adds     int
	mu       sync.Mutex
}

func newFakePRs(prs ...*types.PullRequest) *fakePRs {
	f := &fakePRs{prs: make(map[int]*types.PullRequest), added: make(map[int][]string)}
	for _, pr := range prs {
		f.prs[pr.Number] = pr
	}
	return f
}

func (f *fakePRs) PullRequest(_ context.Context, _, _ string, number int) (*types.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.fetchErr) > 0 {
		err := f.fetchErr[0]
		f.fetchErr = f.fetchErr[1:]
		return nil, err
	}
	pr, ok := f.prs[number]
	if !ok {
		return nil, types.ErrNotFound
	}
	return pr, nil
}

func (f *fakePRs) AddReviewers(_ context.Context, _, _ string, number int, reviewers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	if len(f.addErr) > 0 {
		err := f.addErr[0]
		f.addErr = f.addErr[1:]
		return err
	}
	f.added[number] = append(f.added[number], reviewers...)
	return nil
}

// fakeSelector returns a fixed result and records the authors it was asked about.
type fakeSelector struct {
	err     error
	authors []string
	result  types.AssignmentResult
	mu      sync.Mutex
}

func (s *fakeSelector) SelectReviewer(_ context.Context, _ reviewer.Config, author string) (types.AssignmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors = append(s.authors, author)
	if s.err != nil {
		return types.AssignmentResult{}, s.err
	}
	return s.result, nil
}

func testCoordinator() *ratelimit.Coordinator {
	return ratelimit.New(ratelimit.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		MaxResetWait: time.Second,
	})
}

func testReviewerConfig() reviewer.Config {
	return reviewer.Config{
		Owner:   "acme",
		Repo:    "widgets",
		Team:    reviewer.NewRoster("alice", "bob"),
		Weights: reviewer.DefaultWeights(),
	}
}

func picked(login string) types.AssignmentResult {
	return types.AssignmentResult{
		Reviewer: login,
		Scores: []types.CandidateScore{
			{Login: "alice", Score: 19, Snapshot: types.WorkloadSnapshot{OpenPRCount: 1, TotalLines: 300, RecentReviewCount: 2}},
			{Login: "bob", Score: 34, Snapshot: types.WorkloadSnapshot{OpenPRCount: 2, TotalLines: 500, RecentReviewCount: 3}},
		},
	}
}
