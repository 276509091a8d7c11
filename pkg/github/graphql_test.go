package github

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

func TestValidateGraphQLVariables(t *testing.T) {
	tests := []struct {
		vars    map[string]any
		name    string
		wantErr bool
	}{
		{name: "valid", vars: map[string]any{"owner": "acme", "repo": "widgets.js", "after": nil}},
		{name: "dotfile repo", vars: map[string]any{"repo": ".github"}},
		{name: "path traversal", vars: map[string]any{"repo": "../secrets"}, wantErr: true},
		{name: "slash in owner", vars: map[string]any{"owner": "acme/widgets"}, wantErr: true},
		{name: "empty login", vars: map[string]any{"login": ""}, wantErr: true},
		{name: "introspection", vars: map[string]any{"q": "__schema"}, wantErr: true},
		{name: "bad key", vars: map[string]any{"a{b": "x"}, wantErr: true},
		{name: "long value", vars: map[string]any{"q": strings.Repeat("a", maxGraphQLVarLength+1)}, wantErr: true},
		{name: "negative number", vars: map[string]any{"first": -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGraphQLVariables(tt.vars)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateGraphQLVariables(%v) error = %v, wantErr %v", tt.vars, err, tt.wantErr)
			}
		})
	}
}

func TestClassifyGraphQLErrors(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "60")

	err := classifyGraphQLErrors([]graphQLError{{Type: "NOT_FOUND", Message: "x"}, {Type: "RATE_LIMITED"}}, h, testNow)
	var rl *types.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("rate limiting should take precedence, got %v", err)
	}
	if want := testNow.Add(time.Minute); !rl.Reset.Equal(want) {
		t.Errorf("Reset = %v, want %v", rl.Reset, want)
	}

	err = classifyGraphQLErrors([]graphQLError{{Type: "FORBIDDEN", Message: "no access"}}, http.Header{}, testNow)
	if !errors.Is(err, types.ErrGatewayUnavailable) || !strings.Contains(err.Error(), "no access") {
		t.Errorf("error = %v", err)
	}
}

func TestPageInfo_Next(t *testing.T) {
	if got := (pageInfo{EndCursor: "abc", HasNextPage: true}).next(); got != "abc" {
		t.Errorf("next() = %q, want abc", got)
	}
	if got := (pageInfo{EndCursor: "abc"}).next(); got != "" {
		t.Errorf("next() on last page = %q, want empty", got)
	}
}
