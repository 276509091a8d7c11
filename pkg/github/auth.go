package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 255 // fine-grained tokens are longer than classic ones
	minTokenLength     = 40
	classicTokenLength = 40
	maxAppID           = 999999999
	filePermReadOnly   = 0o400
	filePermOwnerRW    = 0o600

	jwtLifetime         = 9 * time.Minute // GitHub caps App JWTs at 10 minutes
	jwtClockSkew        = time.Minute
	installationRefresh = time.Minute // refresh installation tokens this long before expiry
)

// staticToken is a personal access or workflow token.
type staticToken string

func (s staticToken) token(context.Context, string, string) (string, error) {
	return string(s), nil
}

// validateToken validates a GitHub token.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	// GitHub tokens have specific prefixes
	validPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars)
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}
	return nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	appIDNum, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if appIDNum <= 0 || appIDNum > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// loadPrivateKey loads the private key from content or file path.
func loadPrivateKey(content []byte, keyPath string) (*rsa.PrivateKey, error) {
	var pemBytes []byte
	switch {
	case len(content) > 0:
		pemBytes = content
	case keyPath != "":
		var err error
		pemBytes, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("GitHub App private key is required (GITHUB_APP_KEY or GITHUB_APP_KEY_PATH)")
	}

	if !bytes.Contains(pemBytes, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(pemBytes, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// readPrivateKeyFile reads and validates a private key file.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be an absolute path")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be a file, not a directory")
	}

	// Must be exactly 0600 or 0400
	perm := fileInfo.Mode().Perm()
	if perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}

	return os.ReadFile(cleanPath)
}

type installationToken struct {
	expires time.Time
	value   string
}

// appAuth exchanges a GitHub App JWT for per-repository installation tokens.
type appAuth struct {
	httpClient HTTPDoer
	key        *rsa.PrivateKey
	tokens     map[string]installationToken
	now        func() time.Time
	appID      string
	apiURL     string
	mu         sync.Mutex
}

func newAppAuth(appID string, keyContent []byte, keyPath string, httpClient HTTPDoer, apiURL string) (*appAuth, error) {
	if err := validateAppID(appID); err != nil {
		return nil, err
	}
	key, err := loadPrivateKey(keyContent, keyPath)
	if err != nil {
		return nil, err
	}
	return &appAuth{
		httpClient: httpClient,
		key:        key,
		tokens:     make(map[string]installationToken),
		now:        time.Now,
		appID:      appID,
		apiURL:     apiURL,
	}, nil
}

// jwt signs a short-lived App JWT.
func (a *appAuth) jwt() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iat": now.Add(-jwtClockSkew).Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": a.appID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func (a *appAuth) token(ctx context.Context, owner, repo string) (string, error) {
	if owner == "" || repo == "" {
		return "", errors.New("installation tokens need an owner and repository")
	}
	key := owner + "/" + repo

	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.tokens[key]; ok && a.now().Before(tok.expires.Add(-installationRefresh)) {
		return tok.value, nil
	}

	appJWT, err := a.jwt()
	if err != nil {
		return "", err
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	installURL := fmt.Sprintf("%s/repos/%s/%s/installation", a.apiURL, owner, repo)
	if err := a.call(ctx, http.MethodGet, installURL, appJWT, &installation); err != nil {
		return "", fmt.Errorf("find installation for %s: %w", key, err)
	}

	var created struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	tokenURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiURL, installation.ID)
	if err := a.call(ctx, http.MethodPost, tokenURL, appJWT, &created); err != nil {
		return "", fmt.Errorf("create installation token for %s: %w", key, err)
	}
	if created.Token == "" {
		return "", fmt.Errorf("%w: received empty installation token", types.ErrGatewayUnavailable)
	}

	a.tokens[key] = installationToken{value: created.Token, expires: created.ExpiresAt}
	slog.InfoContext(ctx, "Created installation access token", "component", "auth",
		"repo", key, "installation_id", installation.ID, "expires_at", created.ExpiresAt.Format(time.RFC3339))
	return created.Token, nil
}

func (a *appAuth) call(ctx context.Context, method, apiURL, appJWT string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", types.ErrGatewayUnavailable, method, apiURL, err)
	}
	defer drainAndCloseBody(resp.Body)

	if err := classifyResponse(resp, a.now()); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", types.ErrGatewayUnavailable, apiURL, err)
	}
	return nil
}
