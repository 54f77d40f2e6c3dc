package directory

import (
	"context"
	"strings"
	"time"
)

// emailKey builds the Dataverse alternate-key addressing syntax for a User
// row: table(cr_email='alice@example.com'). Email is the entity's only
// natural key (§3.1), so every write targets a row this way rather than by
// an opaque generated id.
func emailKey(email string) string {
	return "cr_email='" + strings.ReplaceAll(email, "'", "''") + "'"
}

func userFromRow(r Row) User {
	f := r.Fields
	return User{
		Email:          fieldString(f, "cr_email"),
		ETag:           r.ETag,
		AzureADID:      fieldString(f, "cr_azure_ad_id"),
		DevboxName:     fieldString(f, "cr_devbox_name"),
		DevboxStatus:   fieldString(f, "cr_devbox_status"),
		ConnectionURL:  fieldString(f, "cr_connection_url"),
		AuthURL:        fieldString(f, "cr_auth_url"),
		OnboardingStep: OnboardingStep(fieldString(f, "cr_onboarding_step")),
		LastSeen:       fieldTime(f, "cr_last_seen"),
	}
}

// GetUser looks up a User row by email.
func (s *Store) GetUser(ctx context.Context, email string) (User, bool, error) {
	rows, err := s.Client.FindRows(ctx, s.Tables.Users, "cr_email", email)
	if err != nil {
		return User{}, false, err
	}
	if len(rows) == 0 {
		return User{}, false, nil
	}
	return userFromRow(rows[0]), true, nil
}

// CreateUser inserts a new User row at the start of onboarding.
func (s *Store) CreateUser(ctx context.Context, email string) (User, error) {
	row, err := s.Client.CreateRow(ctx, s.Tables.Users, map[string]any{
		"cr_email":           email,
		"cr_onboarding_step": string(OnboardingProvisioning),
	}, true)
	if err != nil {
		return User{}, err
	}
	return userFromRow(row), nil
}

// AdvanceOnboarding patches the user's onboarding step and any step-specific
// fields collected along the way (devbox name, auth URL, connection URL).
// Concurrency conflicts are surfaced to the caller unretried: the Global
// Manager is the sole writer of onboarding state per user (invariant 2).
func (s *Store) AdvanceOnboarding(ctx context.Context, user User, step OnboardingStep, extra map[string]any) (UpdateResult, error) {
	fields := map[string]any{"cr_onboarding_step": string(step)}
	for k, v := range extra {
		fields[k] = v
	}
	return s.Client.UpdateRow(ctx, s.Tables.Users, emailKey(user.Email), fields, user.ETag)
}

// TouchLastSeen updates the user's last_seen timestamp, best-effort (no ETag
// guard — many readers may race here and the field is advisory only).
func (s *Store) TouchLastSeen(ctx context.Context, email string) error {
	_, err := s.Client.UpdateRow(ctx, s.Tables.Users, emailKey(email), map[string]any{
		"cr_last_seen": time.Now().UTC().Format(time.RFC3339),
	}, "")
	return err
}

// UsersByOnboardingStep lists users currently parked at a given onboarding
// step, used by the Global Manager's poll loop to resume in-flight
// onboardings after a restart (§4.2).
func (s *Store) UsersByOnboardingStep(ctx context.Context, step OnboardingStep) ([]User, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Users, Query{
		Filter: EqFilter("cr_onboarding_step", string(step)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, userFromRow(r))
	}
	return out, nil
}
