package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// pullRequestEvent is the subset of a pull_request webhook payload the action reads.
type pullRequestEvent struct {
	PullRequest *struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Number int `json:"number"`
	} `json:"pull_request"`
	Number int `json:"number"`
}

// readEvent returns the PR number and author from the workflow event payload.
// The author is empty when the payload omits it.
func readEvent(path string) (number int, author string, err error) {
	if path == "" {
		return 0, "", fmt.Errorf("%w: GITHUB_EVENT_PATH is not set", types.ErrConfiguration)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", fmt.Errorf("%w: read event payload: %w", types.ErrConfiguration, err)
	}

	var event pullRequestEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return 0, "", fmt.Errorf("%w: decode event payload: %w", types.ErrConfiguration, err)
	}
	if event.PullRequest == nil {
		return 0, "", fmt.Errorf("%w: event is not a pull_request event", types.ErrConfiguration)
	}

	number = event.PullRequest.Number
	if number == 0 {
		number = event.Number
	}
	if number <= 0 {
		return 0, "", fmt.Errorf("%w: event payload has no pull request number", types.ErrConfiguration)
	}
	return number, event.PullRequest.User.Login, nil
}

// prRef holds a parsed PR reference.
type prRef struct {
	owner  string
	repo   string
	number int
}

func (r prRef) key() string {
	return fmt.Sprintf("%s/%s#%d", r.owner, r.repo, r.number)
}

// parsePRURL extracts owner, repo, and PR number from URL.
// URL format: https://github.com/owner/repo/pull/123
func parsePRURL(url string) (prRef, error) {
	const minParts = 7
	parts := strings.Split(url, "/")
	if len(parts) < minParts || parts[2] != "github.com" || parts[5] != "pull" {
		return prRef{}, fmt.Errorf("invalid GitHub PR URL format: %s", url)
	}

	number, err := strconv.Atoi(parts[6])
	if err != nil || number <= 0 {
		return prRef{}, errors.New("invalid PR number in URL: " + url)
	}
	return prRef{owner: parts[3], repo: parts[4], number: number}, nil
}
