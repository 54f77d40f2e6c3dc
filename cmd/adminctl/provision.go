package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basket/shraga/internal/directory"
)

func runProvisionCommand(ctx context.Context, args []string, st styles) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl provision <email>")
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
		user, err = store.CreateUser(ctx, email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create user: %v\n", err)
			return 1
		}
		fmt.Printf("created user row for %s, onboarding step %s\n", email, st.renderStatus(string(user.OnboardingStep)))
		return 0
	}

	if user.OnboardingStep != "" && user.OnboardingStep != directory.OnboardingProvisioningFailed {
		fmt.Printf("%s is already onboarding (step %s); nothing to do\n", email, st.renderStatus(string(user.OnboardingStep)))
		return 0
	}

	if _, err := store.AdvanceOnboarding(ctx, user, directory.OnboardingProvisioning, nil); err != nil {
		fmt.Fprintf(os.Stderr, "advance onboarding: %v\n", err)
		return 1
	}
	fmt.Printf("%s provisioning restarted\n", email)
	return 0
}
