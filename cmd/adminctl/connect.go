package main

import (
	"context"
	"fmt"
	"os"
)

func runConnectCommand(ctx context.Context, args []string, st styles) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl connect <email>")
		return 2
	}
	email := args[0]

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
	conn, err := prov.GetRemoteConnection(ctx, user.AzureADID, devboxNameFor(email))
	if err != nil {
		fmt.Fprintf(os.Stderr, "get remote connection: %v\n", err)
		return 1
	}
	fmt.Println(conn.WebURL)
	return 0
}
