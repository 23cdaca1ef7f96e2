package state

import (
	"encoding/json"
	"fmt"
)

// DecodeSession converts a store subtree into a GameSession.
//
// Precondition: v must be the value rooted at a session path (a
// map[string]any tree, as delivered by store subscriptions).
// Postcondition: Returns a decoded session or a non-nil error; a nil v
// decodes to nil (the session does not exist).
func DecodeSession(v any) (*GameSession, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding session tree: %w", err)
	}
	var g GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decoding session document: %w", err)
	}
	return &g, nil
}

// DecodeHistoryEntries converts the history collection subtree (generated
// key → entry) into a slice of entries in unspecified order.
func DecodeHistoryEntries(v any) ([]GameHistoryEntry, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding history tree: %w", err)
	}
	var byKey map[string]GameHistoryEntry
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("decoding history collection: %w", err)
	}
	entries := make([]GameHistoryEntry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	return entries, nil
}
