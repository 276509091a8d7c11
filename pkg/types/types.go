// Package types contains shared data structures used across the reviewer assignment system.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import "time"

// PullRequestRef identifies one open pull request and the review load it carries.
type PullRequestRef struct {
	Author             string
	RequestedReviewers []string
	// SubmittedReviewers are logins that already left a review on the PR.
	SubmittedReviewers []string
	Number             int
	ChangedLines       int // additions + deletions
}

// ReviewEvent is one submitted review.
type ReviewEvent struct {
	SubmittedAt time.Time
	Reviewer    string
	PRNumber    int
}

// Page is one page of results from the remote data gateway.
// An empty NextCursor means the sequence is exhausted.
type Page[T any] struct {
	NextCursor string
	Items      []T
}

// PullRequest holds the fields of the triggering pull request needed by the action.
type PullRequest struct {
	Title     string
	State     string
	Author    string
	Owner     string
	Repo      string
	Reviewers []string
	Number    int
	Draft     bool
}

// WorkloadSnapshot is the aggregated review load of one candidate.
type WorkloadSnapshot struct {
	OpenPRCount       int
	TotalLines        int
	RecentReviewCount int
}

// CandidateScore pairs a candidate with its snapshot and computed score.
type CandidateScore struct {
	Login    string
	Snapshot WorkloadSnapshot
	Score    float64
}

// AssignmentResult is the outcome of a selection run.
// Reviewer is empty when no candidate was available.
type AssignmentResult struct {
	Reviewer string
	Scores   []CandidateScore // roster order
}

// NoneAvailable reports whether the run ended without an eligible reviewer.
func (r AssignmentResult) NoneAvailable() bool {
	return r.Reviewer == ""
}
