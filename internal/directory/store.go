package directory

import "time"

// Tables names the four entity tables the store exposes. Defaults mirror the
// cr_shraga_* naming convention the coordination plane's Dataverse backend
// uses; every name is independently overridable via env vars (§6).
type Tables struct {
	Conversations string
	Users         string
	Tasks         string
	Messages      string
}

// DefaultTables returns the cr_shraga_* naming convention.
func DefaultTables() Tables {
	return Tables{
		Conversations: "cr_shraga_conversations",
		Users:         "cr_shraga_users",
		Tasks:         "cr_shraga_tasks",
		Messages:      "cr_shraga_messages",
	}
}

// Store layers typed row operations on top of the generic Client.
type Store struct {
	Client *Client
	Tables Tables
}

// NewStore pairs a Client with a Tables mapping.
func NewStore(client *Client, tables Tables) *Store {
	return &Store{Client: client, Tables: tables}
}

func fieldString(f map[string]any, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

func fieldBool(f map[string]any, key string) bool {
	if v, ok := f[key].(bool); ok {
		return v
	}
	return false
}

func fieldTime(f map[string]any, key string) time.Time {
	if v, ok := f[key].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func fieldInt(f map[string]any, key string) int {
	switch v := f[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
