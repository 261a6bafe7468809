package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Joseda-hg/todoapi/internal/model"
)

func stateLabel(state *model.State) string {
	if state == nil {
		return "-"
	}
	return string(*state)
}

func relative(then *time.Time, now time.Time) string {
	if then == nil {
		return "-"
	}
	return humanize.RelTime(*then, now, "ago", "from now")
}

func formatListSummary(list model.TodoList) string {
	if list.Description == nil || *list.Description == "" {
		return list.Name
	}
	return fmt.Sprintf("%s | %s", list.Name, *list.Description)
}

func formatItemSummary(item model.TodoItem, now time.Time) string {
	summary := fmt.Sprintf("%-10s %s", stateLabel(item.State), item.Name)
	if item.DueDate != nil {
		summary += " | due " + relative(item.DueDate, now)
	}
	return summary
}

func formatListDetail(list model.TodoList, now time.Time) string {
	lines := []string{
		"List " + list.ID.String() + ": " + list.Name,
	}
	if list.Description != nil {
		lines = append(lines, *list.Description)
	}
	lines = append(lines,
		"",
		"Created "+relative(list.CreatedDate, now),
		"Updated "+relative(list.UpdatedDate, now),
	)
	return strings.Join(lines, "\n")
}

func formatItemDetail(item model.TodoItem, now time.Time) string {
	lines := []string{
		"Item " + item.ID.String() + ": " + item.Name,
	}
	if item.Description != nil {
		lines = append(lines, *item.Description)
	}
	lines = append(lines,
		"",
		"State     "+stateLabel(item.State),
		"Due       "+relative(item.DueDate, now),
		"Completed "+relative(item.CompletedDate, now),
		"Created   "+relative(item.CreatedDate, now),
		"Updated   "+relative(item.UpdatedDate, now),
	)
	return strings.Join(lines, "\n")
}

func selectionPrefix(selected, focused bool) string {
	switch {
	case selected && focused:
		return ">"
	case selected:
		return "*"
	default:
		return " "
	}
}

// visibleRange returns the rows of a pane height rows tall that keep the
// selected row in view.
func visibleRange(selected, total, height int) (int, int) {
	if height <= 0 {
		return 0, total
	}
	skip := max(selected-height+1, 0)
	return model.Page{Skip: &skip, Top: &height}.Window(total)
}
