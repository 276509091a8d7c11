package reviewer

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

func TestParseRoster(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "simple", input: "alice,bob,charlie", want: []string{"alice", "bob", "charlie"}},
		{name: "whitespace", input: " alice , bob,charlie ", want: []string{"alice", "bob", "charlie"}},
		{name: "duplicates keep first occurrence", input: "bob,alice,bob,charlie,alice", want: []string{"bob", "alice", "charlie"}},
		{name: "empty entries dropped", input: "alice,,bob,", want: []string{"alice", "bob"}},
		{name: "case sensitive", input: "Alice,alice", want: []string{"Alice", "alice"}},
		{name: "empty", input: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRoster(tt.input).Members()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRoster(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoster_Without(t *testing.T) {
	r := NewRoster("alice", "bob", "charlie")

	tests := []struct {
		author string
		want   []string
	}{
		{author: "bob", want: []string{"alice", "charlie"}},
		{author: "dave", want: []string{"alice", "bob", "charlie"}},
		{author: "Bob", want: []string{"alice", "bob", "charlie"}},
	}

	for _, tt := range tests {
		t.Run(tt.author, func(t *testing.T) {
			if got := r.Without(tt.author); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Without(%q) = %v, want %v", tt.author, got, tt.want)
			}
		})
	}

	if got := NewRoster("alice").Without("alice"); len(got) != 0 {
		t.Errorf("expected empty pool, got %v", got)
	}
}

func TestRoster_MembersIsCopy(t *testing.T) {
	r := NewRoster("alice", "bob")
	m := r.Members()
	m[0] = "mallory"

	if got := r.Members()[0]; got != "alice" {
		t.Errorf("roster was mutated through Members(), first member = %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Owner:   "acme",
		Repo:    "widgets",
		Team:    NewRoster("alice"),
		Weights: DefaultWeights(),
	}

	tests := []struct {
		mutate  func(*Config)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero weights", mutate: func(c *Config) { c.Weights = Weights{} }},
		{name: "empty roster is not a configuration error", mutate: func(c *Config) { c.Team = Roster{} }},
		{name: "missing owner", mutate: func(c *Config) { c.Owner = "" }, wantErr: true},
		{name: "missing repo", mutate: func(c *Config) { c.Repo = "" }, wantErr: true},
		{name: "repo with slash", mutate: func(c *Config) { c.Repo = "acme/widgets" }, wantErr: true},
		{name: "negative open PR weight", mutate: func(c *Config) { c.Weights.OpenPR = -1 }, wantErr: true},
		{name: "negative lines weight", mutate: func(c *Config) { c.Weights.LinesPer100 = -0.5 }, wantErr: true},
		{name: "negative recent weight", mutate: func(c *Config) { c.Weights.RecentReview = -3 }, wantErr: true},
		{name: "NaN weight", mutate: func(c *Config) { c.Weights.OpenPR = math.NaN() }, wantErr: true},
		{name: "infinite weight", mutate: func(c *Config) { c.Weights.RecentReview = math.Inf(1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, types.ErrConfiguration) {
					t.Errorf("Validate() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
