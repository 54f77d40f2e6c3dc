package directory

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// tokenTTL mirrors §4.1: the token cache refreshes at most once per 55
// minutes and must be safe for concurrent use.
const tokenTTL = 55 * time.Minute

// TokenSource resolves a bearer token for the directory-store resource.
// Implementations must be safe for concurrent use.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticToken always returns the same explicit token. Used in tests and when
// an operator supplies DATAVERSE_TOKEN directly.
type staticToken struct {
	token string
}

func (s staticToken) Token(context.Context) (string, error) { return s.token, nil }

// NewStaticTokenSource wraps an explicit token.
func NewStaticTokenSource(token string) TokenSource {
	return staticToken{token: token}
}

// azTokenSource resolves a token by shelling out to the Azure CLI, the same
// fallback the Python original uses when no explicit token or env var is
// available. The token is cached for tokenTTL.
type azTokenSource struct {
	resource string

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewAZCLITokenSource returns a TokenSource that calls
// `az account get-access-token --resource <resource>` and caches the result.
func NewAZCLITokenSource(resource string) TokenSource {
	return &azTokenSource{resource: resource}
}

func (a *azTokenSource) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != "" && time.Now().Before(a.expiresAt) {
		return a.cached, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "az", "account", "get-access-token",
		"--resource", a.resource, "--query", "accessToken", "--output", "tsv")
	out, err := cmd.Output()
	if err != nil {
		return "", &Error{Kind: KindAuthFailure, Op: "az account get-access-token", Err: err}
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", &Error{Kind: KindAuthFailure, Op: "az account get-access-token", Err: fmt.Errorf("empty token returned")}
	}

	a.cached = token
	a.expiresAt = time.Now().Add(tokenTTL)
	return token, nil
}

// chainTokenSource tries each source in order, returning the first success.
// This mirrors the Python helper's fallback order: explicit token argument,
// then DATAVERSE_TOKEN, then the Azure CLI, then (out of scope here) a
// default-credential SDK chain.
type chainTokenSource struct {
	sources []TokenSource
}

// NewDefaultTokenSource builds the standard fallback chain for the given
// resource URL: an explicit token (if non-empty), the DATAVERSE_TOKEN env
// var, then the Azure CLI. Cloud-identity specifics beyond this remain out
// of scope per the purpose section.
func NewDefaultTokenSource(resource, explicitToken string) TokenSource {
	var sources []TokenSource
	if explicitToken != "" {
		sources = append(sources, NewStaticTokenSource(explicitToken))
	}
	if env := os.Getenv("DATAVERSE_TOKEN"); env != "" {
		sources = append(sources, NewStaticTokenSource(env))
	}
	sources = append(sources, NewAZCLITokenSource(resource))
	return &chainTokenSource{sources: sources}
}

func (c *chainTokenSource) Token(ctx context.Context) (string, error) {
	var lastErr error
	for _, s := range c.sources {
		tok, err := s.Token(ctx)
		if err == nil && tok != "" {
			return tok, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no token source configured")
	}
	return "", &Error{Kind: KindAuthFailure, Op: "token acquisition", Err: lastErr}
}
