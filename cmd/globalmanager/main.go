// Command globalmanager runs the Global Manager daemon: fallback handling
// of inbound conversation rows plus the user onboarding state machine that
// drives dev-box provisioning (spec §4.2).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/globalmanager"
	otelPkg "github.com/basket/shraga/internal/otel"
	"github.com/basket/shraga/internal/provisioning"
	"github.com/basket/shraga/internal/telemetry"
)

// graphResolver looks up a user's Azure AD object id via the Microsoft
// Graph `/users/{email}` endpoint. Graph-specific request shaping beyond
// this single call is out of scope (SPEC_FULL.md §D) — the Global Manager
// only needs the object id, never the rest of the directory-graph surface.
type graphResolver struct {
	endpoint string
	tokens   directory.TokenSource
	http     *http.Client
}

func (g *graphResolver) ResolveAzureADID(ctx context.Context, email string) (string, error) {
	if g.endpoint == "" {
		return email, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/v1.0/users/"+email, nil)
	if err != nil {
		return "", err
	}
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph lookup for %s: status %d", email, resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.ID, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGlobalManagerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "global manager: config: %v\n", err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	if err := audit.Init(home); err != nil {
		fmt.Fprintf(os.Stderr, "global manager: audit init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(home, "globalmanager", "info", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "global manager: logger init: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{ServiceName: "shraga-globalmanager"})
	if err != nil {
		logger.Warn("otel init failed, continuing without telemetry", "error", err)
	} else {
		defer func() { _ = otelProvider.Shutdown(context.Background()) }()
	}

	tokens := directory.NewDefaultTokenSource(cfg.Directory.BaseURL, cfg.Directory.Token)
	client := directory.New(directory.Config{
		BaseURL: cfg.Directory.BaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	store := directory.NewStore(client, cfg.Directory.Tables())

	provClient := provisioning.New(provisioning.Config{
		Endpoint: cfg.DevCenterEndpoint,
		Project:  cfg.DevBoxProject,
		Tokens:   directory.NewDefaultTokenSource(cfg.DevCenterEndpoint, ""),
		Logger:   logger,
	})

	resolver := &graphResolver{
		endpoint: os.Getenv("GRAPH_ENDPOINT"),
		tokens:   directory.NewDefaultTokenSource("https://graph.microsoft.com", ""),
		http:     &http.Client{},
	}

	hostname, _ := os.Hostname()
	mgr := globalmanager.New(globalmanager.Config{
		Store:              store,
		Provisioning:       provClient,
		Directory:          resolver,
		Logger:             logger,
		PollInterval:       cfg.PollInterval,
		ClaimDelay:         cfg.ClaimDelay,
		DevBoxPool:         cfg.DevBoxPool,
		CustomizationGroup: envOr("DEVBOX_CUSTOMIZATION_GROUP", "default"),
	}, "globalmanager-"+hostname)

	logger.Info("global manager starting", "poll_interval", cfg.PollInterval)
	if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("global manager exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("global manager shut down")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
