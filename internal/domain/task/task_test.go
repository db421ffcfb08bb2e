package task

import (
	"strings"
	"testing"
	"time"
)

func TestCreateRequestValidate(t *testing.T) {
	due := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{
			name: "minimal valid",
			req:  CreateRequest{Title: "Write report"},
		},
		{
			name: "all fields valid",
			req: CreateRequest{
				Title:       "Write report",
				Description: "Quarterly numbers",
				Priority:    PriorityHigh,
				Status:      StatusInProgress,
				DueDate:     &due,
			},
		},
		{
			name:    "missing title",
			req:     CreateRequest{},
			wantErr: true,
		},
		{
			name:    "title too long",
			req:     CreateRequest{Title: strings.Repeat("x", MaxTitleLen+1)},
			wantErr: true,
		},
		{
			name: "description too long",
			req: CreateRequest{
				Title:       "ok",
				Description: strings.Repeat("x", MaxDescriptionLen+1),
			},
			wantErr: true,
		},
		{
			name:    "unknown priority",
			req:     CreateRequest{Title: "ok", Priority: "urgent"},
			wantErr: true,
		},
		{
			name:    "unknown status",
			req:     CreateRequest{Title: "ok", Status: "done"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdatePatchValidate(t *testing.T) {
	empty := ""
	long := strings.Repeat("x", MaxTitleLen+1)
	good := "New title"
	badPriority := Priority("urgent")
	goodStatus := StatusCompleted

	tests := []struct {
		name    string
		patch   UpdatePatch
		wantErr bool
	}{
		{name: "empty patch is valid", patch: UpdatePatch{}},
		{name: "title update", patch: UpdatePatch{Title: &good}},
		{name: "status update", patch: UpdatePatch{Status: &goodStatus}},
		{name: "empty title rejected", patch: UpdatePatch{Title: &empty}, wantErr: true},
		{name: "long title rejected", patch: UpdatePatch{Title: &long}, wantErr: true},
		{name: "unknown priority rejected", patch: UpdatePatch{Priority: &badPriority}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdatePatchEmpty(t *testing.T) {
	if !(&UpdatePatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	title := "x"
	if (&UpdatePatch{Title: &title}).Empty() {
		t.Error("patch with title should not be empty")
	}
	due := time.Now()
	if (&UpdatePatch{DueDate: &due}).Empty() {
		t.Error("patch with due date should not be empty")
	}
}

func TestValidStatus(t *testing.T) {
	for _, st := range Statuses() {
		if !ValidStatus(st) {
			t.Errorf("ValidStatus(%q) = false, want true", st)
		}
	}
	if ValidStatus("done") {
		t.Error(`ValidStatus("done") = true, want false`)
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range Priorities() {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false, want true", p)
		}
	}
	if ValidPriority("urgent") {
		t.Error(`ValidPriority("urgent") = true, want false`)
	}
}
