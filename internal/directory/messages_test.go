package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/basket/shraga/internal/directory"
)

func TestAppendMessage_TruncatesOverlongFields(t *testing.T) {
	var sentFields map[string]any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sentFields)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sentFields)
	})
	longTitle := strings.Repeat("x", 500)
	longContent := strings.Repeat("y", 20000)
	msg, err := store.AppendMessage(context.Background(), "worker", "user@example.com", "t1", longTitle, longContent)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if len(msg.Title) != 200 {
		t.Fatalf("expected truncated title of len 200, got %d", len(msg.Title))
	}
	if len(msg.Content) != 10000 {
		t.Fatalf("expected truncated content of len 10000, got %d", len(msg.Content))
	}
	if !strings.HasSuffix(msg.Content, "... (truncated)") {
		t.Fatal("expected truncation suffix")
	}
}

func TestMessagesForTask_OrdersByCreatedAt(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "orderby") {
			t.Fatalf("expected $orderby in query, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			{"cr_shraga_messageid": "m1", "cr_title": "first"},
			{"cr_shraga_messageid": "m2", "cr_title": "second"},
		}})
	})
	msgs, err := store.MessagesForTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("MessagesForTask: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}
