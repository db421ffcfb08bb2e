package service

import (
	"encoding/json"
	"fmt"
)

// dedupeKey builds the canonical identity of a tool call within a run:
// the tool name plus the arguments re-serialized with sorted keys, so
// structurally equal argument objects collide regardless of key order.
// encoding/json marshals map keys in sorted order, which gives the canonical
// form after a decode/encode round trip.
func dedupeKey(name string, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		return name + ":{}", nil
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return "", fmt.Errorf("canonicalize arguments for %s: %w", name, err)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("canonicalize arguments for %s: %w", name, err)
	}
	return name + ":" + string(canonical), nil
}
