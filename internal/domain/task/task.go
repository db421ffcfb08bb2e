// Package task defines the Task domain entity.
package task

import (
	"fmt"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Field length bounds enforced on create and update.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

// Statuses lists all valid status values in display order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
}

// Priorities lists all valid priority values.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// ValidStatus reports whether s is one of the known status values.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidPriority reports whether p is one of the known priority values.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a single task record.
//
// Invariants: ID is unique and immutable; CompletedAt is non-nil exactly when
// Status is completed; CreatedAt never changes after creation; UpdatedAt is
// non-decreasing.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateRequest holds the fields needed to create a new task.
// Status and Priority are optional; the store applies defaults.
type CreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Status      Status     `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Validate checks bounds and enum domains on a create request.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLen)
	}
	if r.Priority != "" && !ValidPriority(r.Priority) {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	if r.Status != "" && !ValidStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	return nil
}

// UpdatePatch holds the fields of an update. Nil pointers mean "not supplied";
// only supplied fields are applied.
type UpdatePatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Validate checks bounds and enum domains on the supplied fields.
func (p *UpdatePatch) Validate() error {
	if p.Title != nil {
		if *p.Title == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if len(*p.Title) > MaxTitleLen {
			return fmt.Errorf("title exceeds %d characters", MaxTitleLen)
		}
	}
	if p.Description != nil && len(*p.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLen)
	}
	if p.Priority != nil && !ValidPriority(*p.Priority) {
		return fmt.Errorf("invalid priority %q", *p.Priority)
	}
	if p.Status != nil && !ValidStatus(*p.Status) {
		return fmt.Errorf("invalid status %q", *p.Status)
	}
	return nil
}

// Empty reports whether the patch supplies no fields at all.
func (p *UpdatePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Status == nil && p.DueDate == nil
}

// Filter selects tasks by status and/or priority. Zero values match everything;
// set fields combine with logical AND.
type Filter struct {
	Status   Status   `json:"status,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}
