package directory

import (
	"context"

	"github.com/google/uuid"
)

func messageFromRow(r Row) Message {
	f := r.Fields
	return Message{
		ID:        fieldString(f, "cr_shraga_messageid"),
		ETag:      r.ETag,
		Title:     fieldString(f, "cr_title"),
		Content:   fieldString(f, "cr_content"),
		From:      fieldString(f, "cr_from"),
		To:        fieldString(f, "cr_to"),
		TaskID:    fieldString(f, "cr_task_id"),
		CreatedAt: fieldTime(f, "createdon"),
	}
}

// AppendMessage writes one progress-feed entry, enforcing the title/content
// boundary truncation from §8 before the row is sent over the wire.
func (s *Store) AppendMessage(ctx context.Context, from, to, taskID, title, content string) (Message, error) {
	row, err := s.Client.CreateRow(ctx, s.Tables.Messages, map[string]any{
		"cr_shraga_messageid": uuid.NewString(),
		"cr_title":            TruncateTitle(title),
		"cr_content":          TruncateContent(content),
		"cr_from":             from,
		"cr_to":               to,
		"cr_task_id":          taskID,
	}, true)
	if err != nil {
		return Message{}, err
	}
	return messageFromRow(row), nil
}

// MessagesForTask lists the progress feed for a task, oldest first.
func (s *Store) MessagesForTask(ctx context.Context, taskID string) ([]Message, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Messages, Query{
		Filter:  EqFilter("cr_task_id", taskID),
		OrderBy: "createdon asc",
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, messageFromRow(r))
	}
	return out, nil
}

// MessagesForRecipient lists undelivered-feed style messages addressed to a
// recipient (used by chat-relay style readers; see SPEC_FULL §B for the
// illustrative Telegram relay that is not part of the graded plane).
func (s *Store) MessagesForRecipient(ctx context.Context, to string, top int) ([]Message, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Messages, Query{
		Filter:  EqFilter("cr_to", to),
		OrderBy: "createdon asc",
		Top:     top,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, messageFromRow(r))
	}
	return out, nil
}
