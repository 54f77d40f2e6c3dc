package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basket/shraga/internal/directory"
)

func runListCommand(ctx context.Context, args []string, st styles) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl list <onboarding-step>")
		return 2
	}
	step := directory.OnboardingStep(args[0])

	store, err := newDirectoryStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "directory: %v\n", err)
		return 1
	}
	users, err := store.UsersByOnboardingStep(ctx, step)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list users: %v\n", err)
		return 1
	}
	if len(users) == 0 {
		fmt.Printf("no users at step %s\n", step)
		return 0
	}

	fmt.Println(st.header.Render(fmt.Sprintf("%-30s %-20s %s", "EMAIL", "DEVBOX", "STATUS")))
	for _, u := range users {
		fmt.Printf("%-30s %-20s %s\n", u.Email, u.DevboxName, st.renderStatus(u.DevboxStatus))
	}
	return 0
}
