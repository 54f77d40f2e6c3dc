package main

import (
	"context"
	"fmt"
	"os"
)

func runStatusCommand(ctx context.Context, args []string, st styles) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl status <email>")
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
		fmt.Printf("no user row for %s\n", email)
		return 1
	}

	fmt.Println(st.header.Render(email))
	fmt.Printf("  onboarding step : %s\n", st.renderStatus(string(user.OnboardingStep)))
	fmt.Printf("  devbox name     : %s\n", user.DevboxName)
	fmt.Printf("  devbox status   : %s\n", st.renderStatus(user.DevboxStatus))
	fmt.Printf("  connection url  : %s\n", user.ConnectionURL)
	fmt.Printf("  last seen       : %s\n", user.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
	return 0
}
