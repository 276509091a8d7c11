package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/github"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/ratelimit"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

// settings is everything the action reads from its environment.
type settings struct {
	eventPath  string
	outputPath string
	github     github.Config
	policy     ratelimit.Policy
	reviewer   reviewer.Config
}

// loadSettings reads the GitHub Actions environment.
// Every failure wraps types.ErrConfiguration.
func loadSettings(getenv func(string) string) (settings, error) {
	var errs []error
	st := settings{
		eventPath:  getenv("GITHUB_EVENT_PATH"),
		outputPath: getenv("GITHUB_OUTPUT"),
		policy:     ratelimit.DefaultPolicy(),
	}

	owner, repo, err := parseRepository(getenv("GITHUB_REPOSITORY"), getenv("GITHUB_REPOSITORY_OWNER"))
	if err != nil {
		errs = append(errs, err)
	}

	team := getenv("INPUT_TEAM_MEMBERS")
	if strings.TrimSpace(team) == "" {
		errs = append(errs, errors.New("INPUT_TEAM_MEMBERS is required"))
	}

	weights := reviewer.Weights{}
	weights.OpenPR, err = floatInput(getenv, "INPUT_WEIGHT_OPEN_PRS", reviewer.DefaultOpenPRWeight)
	errs = append(errs, err)
	weights.LinesPer100, err = floatInput(getenv, "INPUT_WEIGHT_LINES_PER_100", reviewer.DefaultLinesPer100Weight)
	errs = append(errs, err)
	weights.RecentReview, err = floatInput(getenv, "INPUT_WEIGHT_RECENT_REVIEWS", reviewer.DefaultRecentReviewWeight)
	errs = append(errs, err)

	countSubmitted := false
	if v := strings.TrimSpace(getenv("INPUT_COUNT_SUBMITTED_REVIEWS")); v != "" {
		countSubmitted, err = strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INPUT_COUNT_SUBMITTED_REVIEWS: %w", err))
		}
	}

	if v := strings.TrimSpace(getenv("INPUT_MAX_ATTEMPTS")); v != "" {
		attempts, err := strconv.ParseUint(v, 10, 32)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("INPUT_MAX_ATTEMPTS: %w", err))
		case attempts == 0:
			errs = append(errs, errors.New("INPUT_MAX_ATTEMPTS must be at least 1"))
		default:
			st.policy.MaxAttempts = uint(attempts)
		}
	}

	st.reviewer = reviewer.Config{
		Owner:                 owner,
		Repo:                  repo,
		Team:                  reviewer.ParseRoster(team),
		Weights:               weights,
		CountSubmittedReviews: countSubmitted,
	}

	st.github = github.Config{
		Token:       firstNonEmpty(getenv("INPUT_GITHUB_TOKEN"), getenv("GITHUB_TOKEN")),
		AppID:       getenv("GITHUB_APP_ID"),
		AppKey:      []byte(getenv("GITHUB_APP_KEY")),
		AppKeyPath:  getenv("GITHUB_APP_KEY_PATH"),
		APIURL:      getenv("GITHUB_API_URL"),
		HTTPTimeout: 30 * time.Second,
	}
	st.github.UseAppAuth = st.github.AppID != ""
	if !st.github.UseAppAuth && st.github.Token == "" && getenv("GITHUB_ACTIONS") == "true" {
		errs = append(errs, errors.New("INPUT_GITHUB_TOKEN is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return settings{}, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}
	if err := st.reviewer.Validate(); err != nil {
		return settings{}, err
	}
	return st, nil
}

// parseRepository splits GITHUB_REPOSITORY ("owner/name").
func parseRepository(full, ownerFallback string) (owner, repo string, err error) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", "", errors.New("GITHUB_REPOSITORY is required")
	}
	owner, repo, found := strings.Cut(full, "/")
	if !found {
		owner, repo = ownerFallback, full
	}
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("GITHUB_REPOSITORY %q is not in owner/name form", full)
	}
	return owner, repo, nil
}

func floatInput(getenv func(string) string, name string, def float64) (float64, error) {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
