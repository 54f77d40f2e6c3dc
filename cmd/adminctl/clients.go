package main

import (
	"log/slog"
	"os"

	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/provisioning"
)

func newDirectoryStore() (*directory.Store, error) {
	dir, err := config.LoadDirectory()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tokens := directory.NewDefaultTokenSource(dir.BaseURL, dir.Token)
	client := directory.New(directory.Config{
		BaseURL: dir.BaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	return directory.NewStore(client, dir.Tables()), nil
}

func newProvisioningClient() *provisioning.Client {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	endpoint := os.Getenv("DEVCENTER_ENDPOINT")
	return provisioning.New(provisioning.Config{
		Endpoint: endpoint,
		Project:  os.Getenv("DEVBOX_PROJECT"),
		Tokens:   directory.NewDefaultTokenSource(endpoint, ""),
		Logger:   logger,
	})
}

func devboxNameFor(email string) string {
	return "devbox-" + email
}
