package github

import (
	"context"
	"net/http"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// tokenSource produces the credential sent with requests for a repository.
type tokenSource interface {
	token(ctx context.Context, owner, repo string) (string, error)
}
