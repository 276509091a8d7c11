package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// ranked returns the scores ordered from least to most loaded.
// Equal scores keep roster order.
func ranked(scores []types.CandidateScore) []types.CandidateScore {
	out := slices.Clone(scores)
	slices.SortStableFunc(out, func(a, b types.CandidateScore) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

// formatRanking renders the candidate table for the workflow log.
func formatRanking(number int, author string, w reviewer.Weights, result types.AssignmentResult) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "  PR #%d by @%s\n", number, author)
	fmt.Fprintf(&b, "  Weights: open PRs ×%g, per 100 lines ×%g, recent reviews ×%g\n", w.OpenPR, w.LinesPer100, w.RecentReview)
	b.WriteString(rule)

	if result.NoneAvailable() {
		b.WriteString("\n  ⚠️  No eligible reviewer besides the author\n")
		return b.String()
	}

	b.WriteString("\n  📊 Reviewer workload (lowest first):\n\n")
	for i, s := range ranked(result.Scores) {
		marker := " "
		if s.Login == result.Reviewer {
			marker = "→"
		}
		fmt.Fprintf(&b, "  %s %d. @%-20s score %7.2f  (open PRs %d, lines %d, recent reviews %d)\n",
			marker, i+1, s.Login, s.Score, s.Snapshot.OpenPRCount, s.Snapshot.TotalLines, s.Snapshot.RecentReviewCount)
	}
	fmt.Fprintf(&b, "\n  🎯 Selected reviewer: @%s\n", result.Reviewer)
	return b.String()
}

// writeGitHubOutput appends the selection to the step output file.
// An empty path means the action is not running under GitHub Actions.
func writeGitHubOutput(path, login string) (err error) {
	if path == "" {
		return nil
	}
	if strings.ContainsAny(login, "\r\n") {
		return errors.New("reviewer login contains a newline")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close GITHUB_OUTPUT: %w", cerr)
		}
	}()

	if _, err := io.WriteString(f, "reviewer="+login+"\n"); err != nil {
		return fmt.Errorf("write GITHUB_OUTPUT: %w", err)
	}
	return nil
}
