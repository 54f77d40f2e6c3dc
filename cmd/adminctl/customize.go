package main

import (
	"context"
	"fmt"
	"os"
)

func runCustomizeCommand(ctx context.Context, args []string, st styles) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: adminctl customize <email> <group>")
		return 2
	}
	email, group := args[0], args[1]

	store, err := newDirectoryStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "directory: %v\n", err)
		return 1
	}
	user, found, err := store.GetUser(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get user: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintf(os.Stderr, "no user row for %s\n", email)
		return 1
	}

	prov := newProvisioningClient()
	status, err := prov.RequestCustomization(ctx, user.AzureADID, devboxNameFor(email), group)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request customization: %v\n", err)
		return 1
	}
	fmt.Printf("customization %s requested for %s: %s\n", group, email, st.renderStatus(string(status.ProvisioningState)))
	return 0
}
