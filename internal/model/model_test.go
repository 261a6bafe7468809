package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/errors"
)

func TestListPatchPresence(t *testing.T) {
	var patch ListPatch
	if err := json.Unmarshal([]byte(`{"name":""}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !patch.Name.Set || patch.Name.Value != "" {
		t.Fatalf("expected empty name to be present, got %+v", patch.Name)
	}
	if patch.Description.Set {
		t.Fatalf("expected description to be absent")
	}

	description := "keep me"
	list := TodoList{Name: "Groceries", Description: &description}
	patch.UpdatedDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	patch.Apply(&list)

	if list.Name != "" {
		t.Fatalf("expected name to be cleared to empty string, got %q", list.Name)
	}
	if list.Description == nil || *list.Description != "keep me" {
		t.Fatalf("expected description to be unchanged, got %v", list.Description)
	}
	if list.UpdatedDate == nil || !list.UpdatedDate.Equal(patch.UpdatedDate) {
		t.Fatalf("expected updatedDate to be stamped")
	}
}

func TestListPatchNullClearsDescription(t *testing.T) {
	var patch ListPatch
	if err := json.Unmarshal([]byte(`{"description":null}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !patch.Description.Set || !patch.Description.Null {
		t.Fatalf("expected null description to be present, got %+v", patch.Description)
	}

	description := "old"
	list := TodoList{Name: "Chores", Description: &description}
	patch.Apply(&list)
	if list.Description != nil {
		t.Fatalf("expected description to be cleared")
	}
}

func TestListPatchRejectsNullName(t *testing.T) {
	var patch ListPatch
	if err := json.Unmarshal([]byte(`{"name":null}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := patch.Validate(); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid error, got %v", err)
	}
}

func TestItemPatchValidateState(t *testing.T) {
	var patch ItemPatch
	if err := json.Unmarshal([]byte(`{"state":"blocked"}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := patch.Validate(); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid error, got %v", err)
	}

	patch = ItemPatch{}
	if err := json.Unmarshal([]byte(`{"state":"done","dueDate":"2024-06-01T10:00:00Z"}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := patch.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	item := TodoItem{Name: "Milk"}
	patch.Apply(&item)
	if item.State == nil || *item.State != StateDone {
		t.Fatalf("expected state done, got %v", item.State)
	}
	if item.DueDate == nil || item.DueDate.Day() != 1 {
		t.Fatalf("expected due date to be set, got %v", item.DueDate)
	}
	if item.Name != "Milk" {
		t.Fatalf("expected name to be unchanged, got %q", item.Name)
	}
}

func TestParseState(t *testing.T) {
	for input, want := range map[string]State{
		"todo":       StateTodo,
		"INPROGRESS": StateInProgress,
		" Done ":     StateDone,
	} {
		got, err := ParseState(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %q, got %q", input, want, got)
		}
	}
	if _, err := ParseState("later"); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid error, got %v", err)
	}
}

func TestIDJSON(t *testing.T) {
	data, err := json.Marshal([]ID{"42", "65f1c0ffee0000000000abcd"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[42,"65f1c0ffee0000000000abcd"]` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var ids []ID
	if err := json.Unmarshal([]byte(`[7, "8", "abc"]`), &ids); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ids) != 3 || ids[0] != "7" || ids[1] != "8" || ids[2] != "abc" {
		t.Fatalf("unexpected ids %v", ids)
	}

	if err := json.Unmarshal([]byte(`[1.5]`), &ids); err == nil {
		t.Fatalf("expected fractional id to be rejected")
	}
}

func TestIDInt64(t *testing.T) {
	if value, err := ID("12").Int64(); err != nil || value != 12 {
		t.Fatalf("expected 12, got %d (%v)", value, err)
	}
	for _, bad := range []ID{"", "0", "-3", "abc"} {
		if _, err := bad.Int64(); !errors.Is(err, errors.NotValid) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
}

func TestPageWindow(t *testing.T) {
	two := 2
	ten := 10
	cases := []struct {
		page       Page
		start, end int
	}{
		{Page{}, 0, 5},
		{Page{Skip: &two, Top: &two}, 2, 4},
		{Page{Skip: &ten}, 5, 5},
		{Page{Top: &ten}, 0, 5},
	}
	for _, tc := range cases {
		start, end := tc.page.Window(5)
		if start != tc.start || end != tc.end {
			t.Fatalf("window %+v: expected [%d,%d), got [%d,%d)", tc.page, tc.start, tc.end, start, end)
		}
	}
}

func TestNewListName(t *testing.T) {
	var list NewList
	if err := json.Unmarshal([]byte(`{"name":"","description":"d"}`), &list); err != nil {
		t.Fatalf("empty name: %v", err)
	}
	if list.Name != "" || list.Description == nil || *list.Description != "d" {
		t.Fatalf("unexpected list %+v", list)
	}

	for _, body := range []string{`{}`, `{"name":null}`, `{"description":"d"}`} {
		var list NewList
		if err := json.Unmarshal([]byte(body), &list); !errors.Is(err, errors.NotValid) {
			t.Fatalf("body %s: expected not valid, got %v", body, err)
		}
	}
}

func TestNewItemName(t *testing.T) {
	var item NewItem
	if err := json.Unmarshal([]byte(`{"name":"","state":"done"}`), &item); err != nil {
		t.Fatalf("empty name: %v", err)
	}
	if item.Name != "" || item.State == nil || *item.State != StateDone {
		t.Fatalf("unexpected item %+v", item)
	}

	if err := json.Unmarshal([]byte(`{"state":"todo"}`), &item); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected missing name to be not valid, got %v", err)
	}
}
