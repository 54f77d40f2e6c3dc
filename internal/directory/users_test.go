package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/basket/shraga/internal/directory"
)

func TestGetUser_NotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{}})
	})
	_, found, err := store.GetUser(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestGetUser_Found(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{
				"cr_email":           "alice@example.com",
				"cr_onboarding_step": "auth_pending",
			}},
		})
	})
	user, found, err := store.GetUser(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if user.OnboardingStep != directory.OnboardingAuthPending {
		t.Fatalf("expected auth_pending, got %s", user.OnboardingStep)
	}
}

func TestCreateUser_StartsAtProvisioning(t *testing.T) {
	var sentFields map[string]any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sentFields)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sentFields)
	})
	user, err := store.CreateUser(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.OnboardingStep != directory.OnboardingProvisioning {
		t.Fatalf("expected provisioning, got %s", user.OnboardingStep)
	}
	if sentFields["cr_email"] != "bob@example.com" {
		t.Fatalf("expected email sent to server, got %v", sentFields["cr_email"])
	}
}

func TestAdvanceOnboarding_AddressesRowByEmailKey(t *testing.T) {
	var gotPath string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	user := directory.User{Email: "alice@example.com", ETag: `W/"1"`}
	if _, err := store.AdvanceOnboarding(context.Background(), user, directory.OnboardingCustomizing, nil); err != nil {
		t.Fatalf("AdvanceOnboarding: %v", err)
	}
	if !strings.Contains(gotPath, "cr_email") {
		t.Fatalf("expected path to address row by email key, got %s", gotPath)
	}
}
