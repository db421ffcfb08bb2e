package toolserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/hexaflow/taskpilot/internal/domain/task"
)

// The render functions produce the end-user-facing confirmation text for each
// tool. They never include internal task ids.

func renderCreated(t *task.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Created task %q (priority %s, status %s)", t.Title, t.Priority, t.Status)
	if t.DueDate != nil {
		fmt.Fprintf(&sb, ", due %s", t.DueDate.Format("Jan 2, 2006"))
	}
	sb.WriteString(".")
	return sb.String()
}

func renderList(tasks []task.Task, f task.Filter) string {
	if len(tasks) == 0 {
		if f.Status != "" || f.Priority != "" {
			return "No tasks match the given filter."
		}
		return "The task list is empty."
	}

	byStatus := make(map[task.Status][]task.Task)
	for i := range tasks {
		byStatus[tasks[i].Status] = append(byStatus[tasks[i].Status], tasks[i])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d task%s", len(tasks), plural(len(tasks)))
	var counts []string
	for _, st := range task.Statuses() {
		if n := len(byStatus[st]); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, st))
		}
	}
	fmt.Fprintf(&sb, " (%s):\n", strings.Join(counts, ", "))

	for _, st := range task.Statuses() {
		group := byStatus[st]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s:\n", strings.ToUpper(string(st[0]))+strings.ReplaceAll(string(st[1:]), "_", " "))
		for i := range group {
			t := &group[i]
			fmt.Fprintf(&sb, "- %s (%s priority", t.Title, t.Priority)
			if t.DueDate != nil {
				fmt.Fprintf(&sb, ", due %s", t.DueDate.Format("Jan 2, 2006"))
			}
			sb.WriteString(")\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderUpdated(before, after *task.Task) string {
	var changes []string
	if before.Title != after.Title {
		changes = append(changes, fmt.Sprintf("title: %q -> %q", before.Title, after.Title))
	}
	if before.Description != after.Description {
		changes = append(changes, "description updated")
	}
	if before.Priority != after.Priority {
		changes = append(changes, fmt.Sprintf("priority: %s -> %s", before.Priority, after.Priority))
	}
	if before.Status != after.Status {
		changes = append(changes, fmt.Sprintf("status: %s -> %s", before.Status, after.Status))
	}
	if !equalTime(before.DueDate, after.DueDate) {
		changes = append(changes, fmt.Sprintf("due date: %s -> %s", formatDue(before.DueDate), formatDue(after.DueDate)))
	}
	if len(changes) == 0 {
		return fmt.Sprintf("Task %q is unchanged.", after.Title)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Updated task %q:\n", after.Title)
	for _, c := range changes {
		fmt.Fprintf(&sb, "- %s\n", c)
	}
	if after.Status == task.StatusCompleted && before.Status != task.StatusCompleted {
		sb.WriteString("Nice work!")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderDeleted(t *task.Task) string {
	return fmt.Sprintf("Deleted task %q.", t.Title)
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("Jan 2, 2006")
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
