package service

import (
	"encoding/json"
	"testing"
)

func TestDedupeKeyOrderInsensitive(t *testing.T) {
	a, err := dedupeKey("task_create", json.RawMessage(`{"title":"x","priority":"high"}`))
	if err != nil {
		t.Fatalf("dedupeKey: %v", err)
	}
	b, err := dedupeKey("task_create", json.RawMessage(`{"priority":"high","title":"x"}`))
	if err != nil {
		t.Fatalf("dedupeKey: %v", err)
	}
	if a != b {
		t.Errorf("keys differ for structurally equal arguments: %q vs %q", a, b)
	}
}

func TestDedupeKeyDistinguishes(t *testing.T) {
	tests := []struct {
		name  string
		aName string
		aArgs string
		bName string
		bArgs string
	}{
		{name: "different tool", aName: "task_create", aArgs: `{"title":"x"}`, bName: "task_update", bArgs: `{"title":"x"}`},
		{name: "different args", aName: "task_create", aArgs: `{"title":"x"}`, bName: "task_create", bArgs: `{"title":"y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := dedupeKey(tt.aName, json.RawMessage(tt.aArgs))
			if err != nil {
				t.Fatalf("dedupeKey: %v", err)
			}
			b, err := dedupeKey(tt.bName, json.RawMessage(tt.bArgs))
			if err != nil {
				t.Fatalf("dedupeKey: %v", err)
			}
			if a == b {
				t.Errorf("keys collide: %q", a)
			}
		})
	}
}

func TestDedupeKeyEmptyArgs(t *testing.T) {
	a, err := dedupeKey("task_list", nil)
	if err != nil {
		t.Fatalf("dedupeKey: %v", err)
	}
	b, err := dedupeKey("task_list", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("dedupeKey: %v", err)
	}
	if a != b {
		t.Errorf("nil and empty object should collide: %q vs %q", a, b)
	}
}

func TestDedupeKeyInvalidJSON(t *testing.T) {
	if _, err := dedupeKey("task_list", json.RawMessage(`{broken`)); err == nil {
		t.Error("expected error for malformed arguments")
	}
}
