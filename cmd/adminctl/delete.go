package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func runDeleteCommand(ctx context.Context, args []string, st styles) int {
	force := false
	var rest []string
	for _, a := range args {
		if a == "-y" || a == "--yes" {
			force = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl delete [-y] <email>")
		return 2
	}
	email := rest[0]

	if !force {
		fmt.Fprintf(os.Stderr, "delete dev box for %s? [y/N] ", email)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(os.Stderr, "aborted")
			return 1
		}
	}

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
	if err := prov.DeleteDevBox(ctx, user.AzureADID, devboxNameFor(email)); err != nil {
		fmt.Fprintf(os.Stderr, "delete dev box: %v\n", err)
		return 1
	}
	fmt.Printf("%s dev box deleted\n", st.renderStatus("Succeeded"))
	return 0
}
