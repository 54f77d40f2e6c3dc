package odatatest_test

import (
	"context"
	"testing"
	"time"

	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/directory/odatatest"
)

func newStore(t *testing.T) *directory.Store {
	t.Helper()
	srv, err := odatatest.New()
	if err != nil {
		t.Fatalf("odatatest.New: %v", err)
	}
	t.Cleanup(srv.Close)
	client := directory.New(directory.Config{
		BaseURL: srv.URL(),
		Tokens:  directory.NewStaticTokenSource("test-token"),
	})
	return directory.NewStore(client, directory.DefaultTables())
}

func TestCreateAndGetConversation_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	created, err := store.CreateInbound(ctx, "alice@example.com", "conv-1", "hello")
	if err != nil {
		t.Fatalf("CreateInbound: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	if created.ETag == "" {
		t.Fatal("expected a non-empty etag")
	}

	rows, err := store.UnclaimedInbound(ctx, "alice@example.com", time.Time{}, 10)
	if err != nil {
		t.Fatalf("UnclaimedInbound: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("expected to find the created row, got %+v", rows)
	}
}

func TestClaimConversation_OneWinnerOneConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	conv, err := store.CreateInbound(ctx, "bob@example.com", "conv-2", "hi")
	if err != nil {
		t.Fatalf("CreateInbound: %v", err)
	}

	resA, errA := store.ClaimConversation(ctx, conv, "claimant-a")
	resB, errB := store.ClaimConversation(ctx, conv, "claimant-b")
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v / %v", errA, errB)
	}
	if resA != directory.UpdateOK {
		t.Fatalf("expected first claim to win, got %v", resA)
	}
	if resB != directory.UpdateConflict {
		t.Fatalf("expected second claim to conflict, got %v", resB)
	}
}

func TestUserAlternateKeyAddressing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, err := store.CreateUser(ctx, "carol@example.com"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	user, found, err := store.GetUser(ctx, "carol@example.com")
	if err != nil || !found {
		t.Fatalf("GetUser: found=%v err=%v", found, err)
	}

	if _, err := store.AdvanceOnboarding(ctx, user, directory.OnboardingWaitingProvisioning, map[string]any{
		"cr_devbox_name": "shraga-carol",
	}); err != nil {
		t.Fatalf("AdvanceOnboarding: %v", err)
	}

	updated, found, err := store.GetUser(ctx, "carol@example.com")
	if err != nil || !found {
		t.Fatalf("GetUser after update: found=%v err=%v", found, err)
	}
	if updated.OnboardingStep != directory.OnboardingWaitingProvisioning {
		t.Fatalf("expected onboarding step to persist, got %q", updated.OnboardingStep)
	}
	if updated.DevboxName != "shraga-carol" {
		t.Fatalf("expected devbox name to persist, got %q", updated.DevboxName)
	}
}

