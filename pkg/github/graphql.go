package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

const (
	maxQuerySize        = 100000
	maxGraphQLVarLength = 10000
	maxGraphQLVarNum    = 1000000
	maxGitHubNameLength = 100
)

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// next returns the cursor of the following page, or "" when there is none.
func (p pageInfo) next() string {
	if !p.HasNextPage {
		return ""
	}
	return p.EndCursor
}

// graphQL runs query against owner/repo's installation and decodes the data
// member of the response into out.
func (c *Client) graphQL(ctx context.Context, name, owner, repo, query string, variables map[string]any, out any) error {
	if err := validateGraphQLVariables(variables); err != nil {
		return fmt.Errorf("%w: invalid GraphQL variables: %w", types.ErrConfiguration, err)
	}
	if len(query) > maxQuerySize {
		return fmt.Errorf("GraphQL query too large: %d chars (max %d)", len(query), maxQuerySize)
	}

	slog.DebugContext(ctx, "Executing GraphQL query", "component", "api", "type", name, "size", len(query))
	start := time.Now()

	payload := map[string]any{
		"query":     query,
		"variables": variables,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, c.apiURL+"/graphql", owner, repo, payload)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode GraphQL %s response: %w", types.ErrGatewayUnavailable, name, err)
	}
	if len(envelope.Errors) > 0 {
		slog.WarnContext(ctx, "GraphQL query returned errors", "component", "api", "type", name, "errors", envelope.Errors)
		return classifyGraphQLErrors(envelope.Errors, resp.Header, c.now())
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("%w: GraphQL %s response has no data", types.ErrGatewayUnavailable, name)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode GraphQL %s data: %w", types.ErrGatewayUnavailable, name, err)
	}

	slog.DebugContext(ctx, "GraphQL query completed", "component", "api", "type", name, "duration", time.Since(start))
	return nil
}

// classifyGraphQLErrors maps errors reported inside a 200 response.
func classifyGraphQLErrors(errs []graphQLError, h http.Header, now time.Time) error {
	messages := make([]string, 0, len(errs))
	notFound := false
	for _, e := range errs {
		switch e.Type {
		case "RATE_LIMITED":
			return &types.RateLimitError{Reset: rateLimitReset(h, now)}
		case "NOT_FOUND":
			notFound = true
		}
		messages = append(messages, e.Message)
	}
	if notFound {
		return fmt.Errorf("%w: %s", types.ErrNotFound, strings.Join(messages, "; "))
	}
	return fmt.Errorf("%w: graphql errors: %s", types.ErrGatewayUnavailable, strings.Join(messages, "; "))
}

// validateGraphQLVariables validates GraphQL variables to prevent injection.
func validateGraphQLVariables(variables map[string]any) error {
	for key, value := range variables {
		if strings.ContainsAny(key, "{}[]\"'\n\r\t") {
			return fmt.Errorf("invalid character in variable key: %s", key)
		}

		if str, ok := value.(string); ok {
			if strings.Contains(str, "__schema") || strings.Contains(str, "__type") {
				return errors.New("introspection queries not allowed in variables")
			}
			if len(str) > maxGraphQLVarLength {
				return fmt.Errorf("variable value too long: %d chars", len(str))
			}
			if key == "owner" || key == "repo" || key == "login" {
				if strings.Contains(str, "..") || strings.ContainsAny(str, "/\\\n\r\x00") || len(str) > maxGitHubNameLength || str == "" {
					return fmt.Errorf("invalid GitHub name in variable %s: %s", key, str)
				}
			}
		}

		if num, ok := value.(int); ok {
			if num < 0 || num > maxGraphQLVarNum {
				return fmt.Errorf("numeric variable out of range: %d", num)
			}
		}
	}
	return nil
}
