package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func conversationFromRow(r Row) Conversation {
	f := r.Fields
	return Conversation{
		ID:                     fieldString(f, "cr_shraga_conversationid"),
		ETag:                   r.ETag,
		UserEmail:              fieldString(f, "cr_user_email"),
		ExternalConversationID: fieldString(f, "cr_external_conversation_id"),
		Message:                fieldString(f, "cr_message"),
		Direction:              Direction(fieldString(f, "cr_direction")),
		Status:                 RowStatus(fieldString(f, "cr_status")),
		ClaimedBy:              fieldString(f, "cr_claimed_by"),
		InReplyTo:              fieldString(f, "cr_in_reply_to"),
		FollowupExpected:       fieldBool(f, "cr_followup_expected"),
		CreatedAt:              fieldTime(f, "createdon"),
	}
}

// UnclaimedInbound lists Unclaimed Inbound rows older than olderThan,
// oldest first, optionally scoped to a single user email (empty = any user).
func (s *Store) UnclaimedInbound(ctx context.Context, userEmail string, olderThan time.Time, top int) ([]Conversation, error) {
	clauses := []string{
		EqFilter("cr_direction", string(DirectionInbound)),
		EqFilter("cr_status", string(RowStatusUnclaimed)),
	}
	if userEmail != "" {
		clauses = append(clauses, EqFilter("cr_user_email", userEmail))
	}
	rows, err := s.Client.GetRows(ctx, s.Tables.Conversations, Query{
		Filter:  AndFilters(clauses...) + formatCreatedBefore(olderThan),
		OrderBy: "createdon asc",
		Top:     top,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversationFromRow(r))
	}
	return out, nil
}

// UnclaimedOutbound lists Unclaimed Outbound rows, oldest first, optionally
// scoped to one user email. Chat front-ends (e.g. the Telegram relay) poll
// this instead of the Inbound side to find replies waiting for delivery.
func (s *Store) UnclaimedOutbound(ctx context.Context, userEmail string, top int) ([]Conversation, error) {
	clauses := []string{
		EqFilter("cr_direction", string(DirectionOutbound)),
		EqFilter("cr_status", string(RowStatusUnclaimed)),
	}
	if userEmail != "" {
		clauses = append(clauses, EqFilter("cr_user_email", userEmail))
	}
	rows, err := s.Client.GetRows(ctx, s.Tables.Conversations, Query{
		Filter:  AndFilters(clauses...),
		OrderBy: "createdon asc",
		Top:     top,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversationFromRow(r))
	}
	return out, nil
}

func formatCreatedBefore(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return " and createdon le " + t.UTC().Format(time.RFC3339)
}

// ClaimConversation ETag-PATCHes a row to Claimed by claimedBy. Returns
// UpdateConflict (without error) when another claimant already won —
// invariant 1, §3.2.
func (s *Store) ClaimConversation(ctx context.Context, conv Conversation, claimedBy string) (UpdateResult, error) {
	return s.Client.UpdateRow(ctx, s.Tables.Conversations, conv.ID, map[string]any{
		"cr_status":     string(RowStatusClaimed),
		"cr_claimed_by": claimedBy,
	}, conv.ETag)
}

// MarkProcessed transitions a Claimed row to Processed. No ETag is required
// because the caller already owns the row per the claim.
func (s *Store) MarkProcessed(ctx context.Context, convID string) error {
	_, err := s.Client.UpdateRow(ctx, s.Tables.Conversations, convID, map[string]any{
		"cr_status": string(RowStatusProcessed),
	}, "")
	return err
}

// CreateOutbound writes a new Outbound row replying to inReplyTo.
func (s *Store) CreateOutbound(ctx context.Context, userEmail, externalConvID, message, inReplyTo string, followupExpected bool) (Conversation, error) {
	fields := map[string]any{
		"cr_shraga_conversationid":    uuid.NewString(),
		"cr_user_email":               userEmail,
		"cr_external_conversation_id": externalConvID,
		"cr_message":                  message,
		"cr_direction":                string(DirectionOutbound),
		"cr_status":                   string(RowStatusUnclaimed),
		"cr_in_reply_to":              inReplyTo,
		"cr_followup_expected":        followupExpected,
	}
	row, err := s.Client.CreateRow(ctx, s.Tables.Conversations, fields, true)
	if err != nil {
		return Conversation{}, err
	}
	return conversationFromRow(row), nil
}

// CreateInbound writes a new Unclaimed Inbound row, the entry point for a
// chat front-end relaying an externally received user message into the
// coordination plane.
func (s *Store) CreateInbound(ctx context.Context, userEmail, externalConvID, message string) (Conversation, error) {
	fields := map[string]any{
		"cr_shraga_conversationid":    uuid.NewString(),
		"cr_user_email":               userEmail,
		"cr_external_conversation_id": externalConvID,
		"cr_message":                  message,
		"cr_direction":                string(DirectionInbound),
		"cr_status":                   string(RowStatusUnclaimed),
	}
	row, err := s.Client.CreateRow(ctx, s.Tables.Conversations, fields, true)
	if err != nil {
		return Conversation{}, err
	}
	return conversationFromRow(row), nil
}

// ClaimOutboundForDelivery ETag-PATCHes an Unclaimed Outbound row to Claimed
// by a chat front-end relay instance, mirroring the Inbound claim race
// (invariant 1, §3.2) so two relay replicas never double-deliver the same
// reply.
func (s *Store) ClaimOutboundForDelivery(ctx context.Context, conv Conversation, claimedBy string) (UpdateResult, error) {
	return s.Client.UpdateRow(ctx, s.Tables.Conversations, conv.ID, map[string]any{
		"cr_status":     string(RowStatusClaimed),
		"cr_claimed_by": claimedBy,
	}, conv.ETag)
}

// MarkDelivered transitions a Claimed Outbound row to Delivered once the
// chat front-end has handed the reply to the user.
func (s *Store) MarkDelivered(ctx context.Context, convID string) error {
	_, err := s.Client.UpdateRow(ctx, s.Tables.Conversations, convID, map[string]any{
		"cr_status": string(RowStatusDelivered),
	}, "")
	return err
}

// SweepStaleOutbound transitions Unclaimed Outbound rows older than
// maxAge to Expired. Returns the number of rows swept. Best-effort: a
// failure on one row does not abort the sweep.
func (s *Store) SweepStaleOutbound(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	rows, err := s.Client.GetRows(ctx, s.Tables.Conversations, Query{
		Filter: AndFilters(
			EqFilter("cr_direction", string(DirectionOutbound)),
			EqFilter("cr_status", string(RowStatusUnclaimed)),
		) + formatCreatedBefore(cutoff),
	})
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, r := range rows {
		conv := conversationFromRow(r)
		if _, err := s.Client.UpdateRow(ctx, s.Tables.Conversations, conv.ID, map[string]any{
			"cr_status": string(RowStatusExpired),
		}, ""); err == nil {
			swept++
		}
	}
	return swept, nil
}
