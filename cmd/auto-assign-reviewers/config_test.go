package main

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/reviewer"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

func envFunc(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"GITHUB_REPOSITORY":  "acme/widgets",
		"GITHUB_EVENT_PATH":  "/tmp/event.json",
		"GITHUB_OUTPUT":      "/tmp/output",
		"INPUT_GITHUB_TOKEN": "ghs_token",
		"INPUT_TEAM_MEMBERS": "alice, bob ,charlie",
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	st, err := loadSettings(envFunc(baseEnv()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.reviewer.Owner != "acme" || st.reviewer.Repo != "widgets" {
		t.Errorf("repository = %s/%s, want acme/widgets", st.reviewer.Owner, st.reviewer.Repo)
	}
	if got := st.reviewer.Team.Members(); !reflect.DeepEqual(got, []string{"alice", "bob", "charlie"}) {
		t.Errorf("team = %v", got)
	}
	if st.reviewer.Weights != reviewer.DefaultWeights() {
		t.Errorf("weights = %+v, want defaults", st.reviewer.Weights)
	}
	if st.reviewer.CountSubmittedReviews {
		t.Error("CountSubmittedReviews should default to false")
	}
	if st.policy.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", st.policy.MaxAttempts)
	}
	if st.github.Token != "ghs_token" || st.github.UseAppAuth {
		t.Errorf("github config = %+v", st.github)
	}
	if st.eventPath != "/tmp/event.json" || st.outputPath != "/tmp/output" {
		t.Errorf("paths = %q %q", st.eventPath, st.outputPath)
	}
}

func TestLoadSettings_Overrides(t *testing.T) {
	env := baseEnv()
	env["INPUT_GITHUB_TOKEN"] = ""
	env["GITHUB_TOKEN"] = "ghs_fallback"
	env["INPUT_WEIGHT_OPEN_PRS"] = "5"
	env["INPUT_WEIGHT_LINES_PER_100"] = "0.5"
	env["INPUT_WEIGHT_RECENT_REVIEWS"] = "0"
	env["INPUT_COUNT_SUBMITTED_REVIEWS"] = "true"
	env["INPUT_MAX_ATTEMPTS"] = "2"
	env["GITHUB_APP_ID"] = "12345"
	env["GITHUB_APP_KEY_PATH"] = "/secrets/key.pem"

	st, err := loadSettings(envFunc(env))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := reviewer.Weights{OpenPR: 5, LinesPer100: 0.5, RecentReview: 0}
	if st.reviewer.Weights != want {
		t.Errorf("weights = %+v, want %+v", st.reviewer.Weights, want)
	}
	if !st.reviewer.CountSubmittedReviews {
		t.Error("expected CountSubmittedReviews")
	}
	if st.policy.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", st.policy.MaxAttempts)
	}
	if st.github.Token != "ghs_fallback" {
		t.Errorf("Token = %q, want fallback", st.github.Token)
	}
	if !st.github.UseAppAuth || st.github.AppID != "12345" || st.github.AppKeyPath != "/secrets/key.pem" {
		t.Errorf("app auth not configured: %+v", st.github)
	}
}

func TestLoadSettings_Errors(t *testing.T) {
	tests := []struct {
		set  map[string]string
		name string
	}{
		{name: "missing repository", set: map[string]string{"GITHUB_REPOSITORY": ""}},
		{name: "malformed repository", set: map[string]string{"GITHUB_REPOSITORY": "acme/widgets/extra"}},
		{name: "missing team", set: map[string]string{"INPUT_TEAM_MEMBERS": "  "}},
		{name: "non-numeric weight", set: map[string]string{"INPUT_WEIGHT_OPEN_PRS": "ten"}},
		{name: "negative weight", set: map[string]string{"INPUT_WEIGHT_RECENT_REVIEWS": "-3"}},
		{name: "infinite weight", set: map[string]string{"INPUT_WEIGHT_LINES_PER_100": "+Inf"}},
		{name: "bad boolean", set: map[string]string{"INPUT_COUNT_SUBMITTED_REVIEWS": "sometimes"}},
		{name: "zero attempts", set: map[string]string{"INPUT_MAX_ATTEMPTS": "0"}},
		{name: "missing token in actions", set: map[string]string{"INPUT_GITHUB_TOKEN": "", "GITHUB_ACTIONS": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range tt.set {
				env[k] = v
			}
			_, err := loadSettings(envFunc(env))
			if !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("loadSettings() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		full, fallback string
		wantOwner      string
		wantRepo       string
		wantErr        bool
	}{
		{full: "acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{full: "widgets", fallback: "acme", wantOwner: "acme", wantRepo: "widgets"},
		{full: "widgets", wantErr: true},
		{full: "/widgets", wantErr: true},
		{full: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.full, func(t *testing.T) {
			owner, repo, err := parseRepository(tt.full, tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRepository(%q) error = %v, wantErr %v", tt.full, err, tt.wantErr)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("parseRepository(%q) = %q, %q", tt.full, owner, repo)
			}
		})
	}
}
