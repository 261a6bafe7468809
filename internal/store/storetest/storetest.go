// Package storetest holds behaviour tests every store.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
)

// Harness describes a backend under test.
type Harness struct {
	// NewStore returns an empty store, closed by the caller via t.Cleanup.
	NewStore func(t *testing.T) store.Store
	// MissingID is a well-formed identifier that no entity will ever have.
	MissingID model.ID
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func Run(t *testing.T, h Harness) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h Harness, s store.Store)
	}{
		{"CreateAndGetList", testCreateAndGetList},
		{"ListListsPagination", testListListsPagination},
		{"UpdateListNameOnly", testUpdateListNameOnly},
		{"UpdateListEmptyStringIsApplied", testUpdateListEmptyString},
		{"UpdateMissingList", testUpdateMissingList},
		{"DeleteList", testDeleteList},
		{"DeleteListKeepsItems", testDeleteListKeepsItems},
		{"CreateAndGetItem", testCreateAndGetItem},
		{"GetItemScopedToList", testGetItemScopedToList},
		{"ListItemsByState", testListItemsByState},
		{"UpdateItemPartial", testUpdateItemPartial},
		{"DeleteItem", testDeleteItem},
		{"SetItemsState", testSetItemsState},
		{"SetItemsStateMissingItemChangesNothing", testSetItemsStateMissing},
		{"WritesReadBackUnchanged", testWritesReadBack},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := h.NewStore(t)
			tc.fn(t, h, s)
		})
	}
}

func strPtr(value string) *string {
	return &value
}

func statePtr(value model.State) *model.State {
	return &value
}

func mustCreateList(t *testing.T, s store.Store, name string) model.TodoList {
	t.Helper()
	list, err := s.CreateList(context.Background(), model.NewList{Name: name, CreatedDate: baseTime})
	if err != nil {
		t.Fatalf("create list %q: %v", name, err)
	}
	return list
}

func mustCreateItem(t *testing.T, s store.Store, listID model.ID, name string, state *model.State) model.TodoItem {
	t.Helper()
	item, err := s.CreateItem(context.Background(), listID, model.NewItem{Name: name, State: state, CreatedDate: baseTime})
	if err != nil {
		t.Fatalf("create item %q: %v", name, err)
	}
	return item
}

func testCreateAndGetList(t *testing.T, _ Harness, s store.Store) {
	created, err := s.CreateList(context.Background(), model.NewList{
		Name:        "Groceries",
		Description: strPtr("weekly shop"),
		CreatedDate: baseTime,
	})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected list ID to be set")
	}

	got, err := s.GetList(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got.Name != "Groceries" {
		t.Fatalf("expected name 'Groceries', got %q", got.Name)
	}
	if got.Description == nil || *got.Description != "weekly shop" {
		t.Fatalf("expected description 'weekly shop', got %v", got.Description)
	}
	if got.CreatedDate == nil || !got.CreatedDate.Equal(baseTime) {
		t.Fatalf("expected createdDate %v, got %v", baseTime, got.CreatedDate)
	}
}

func testListListsPagination(t *testing.T, _ Harness, s store.Store) {
	for i := 1; i <= 5; i++ {
		mustCreateList(t, s, fmt.Sprintf("list %d", i))
	}

	all, err := s.ListLists(context.Background(), model.Page{})
	if err != nil {
		t.Fatalf("list lists: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 lists, got %d", len(all))
	}

	two := 2
	page, err := s.ListLists(context.Background(), model.Page{Top: &two, Skip: &two})
	if err != nil {
		t.Fatalf("list lists page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 lists, got %d", len(page))
	}
	if page[0].Name != "list 3" || page[1].Name != "list 4" {
		t.Fatalf("expected lists 3 and 4, got %q and %q", page[0].Name, page[1].Name)
	}

	four := 4
	tail, err := s.ListLists(context.Background(), model.Page{Skip: &four})
	if err != nil {
		t.Fatalf("list lists tail: %v", err)
	}
	if len(tail) != 1 || tail[0].Name != "list 5" {
		t.Fatalf("expected only list 5 after skip=4, got %v", tail)
	}
}

func testUpdateListNameOnly(t *testing.T, _ Harness, s store.Store) {
	created, err := s.CreateList(context.Background(), model.NewList{
		Name:        "Chores",
		Description: strPtr("house"),
		CreatedDate: baseTime,
	})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	later := baseTime.Add(time.Hour)
	updated, err := s.UpdateList(context.Background(), created.ID, model.ListPatch{
		Name:        model.Some("Housework"),
		UpdatedDate: later,
	})
	if err != nil {
		t.Fatalf("update list: %v", err)
	}
	if updated.Name != "Housework" {
		t.Fatalf("expected name 'Housework', got %q", updated.Name)
	}

	got, err := s.GetList(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got.Name != "Housework" {
		t.Fatalf("expected stored name 'Housework', got %q", got.Name)
	}
	if got.Description == nil || *got.Description != "house" {
		t.Fatalf("expected description to be unchanged, got %v", got.Description)
	}
	if got.UpdatedDate == nil || !got.UpdatedDate.Equal(later) {
		t.Fatalf("expected updatedDate %v, got %v", later, got.UpdatedDate)
	}
	if got.CreatedDate == nil || !got.CreatedDate.Equal(baseTime) {
		t.Fatalf("expected createdDate to be unchanged, got %v", got.CreatedDate)
	}
}

func testUpdateListEmptyString(t *testing.T, _ Harness, s store.Store) {
	created, err := s.CreateList(context.Background(), model.NewList{
		Name:        "Errands",
		Description: strPtr("town"),
		CreatedDate: baseTime,
	})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	if _, err := s.UpdateList(context.Background(), created.ID, model.ListPatch{
		Description: model.Some(strPtr("")),
		UpdatedDate: baseTime,
	}); err != nil {
		t.Fatalf("update list: %v", err)
	}

	got, err := s.GetList(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got.Description == nil || *got.Description != "" {
		t.Fatalf("expected description to be the empty string, got %v", got.Description)
	}
}

func testUpdateMissingList(t *testing.T, h Harness, s store.Store) {
	_, err := s.UpdateList(context.Background(), h.MissingID, model.ListPatch{Name: model.Some("x"), UpdatedDate: baseTime})
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testDeleteList(t *testing.T, h Harness, s store.Store) {
	created := mustCreateList(t, s, "Temporary")

	if err := s.DeleteList(context.Background(), created.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	if _, err := s.GetList(context.Background(), created.ID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.DeleteList(context.Background(), created.ID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if err := s.DeleteList(context.Background(), h.MissingID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found for missing list, got %v", err)
	}
}

func testDeleteListKeepsItems(t *testing.T, _ Harness, s store.Store) {
	list := mustCreateList(t, s, "Parent")
	item := mustCreateItem(t, s, list.ID, "Orphan", nil)

	if err := s.DeleteList(context.Background(), list.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	got, err := s.GetItem(context.Background(), list.ID, item.ID)
	if err != nil {
		t.Fatalf("expected item to outlive its list: %v", err)
	}
	if got.Name != "Orphan" {
		t.Fatalf("expected item name 'Orphan', got %q", got.Name)
	}
}

func testCreateAndGetItem(t *testing.T, _ Harness, s store.Store) {
	list := mustCreateList(t, s, "Work")
	due := baseTime.Add(48 * time.Hour)

	created, err := s.CreateItem(context.Background(), list.ID, model.NewItem{
		Name:        "Write report",
		Description: strPtr("quarterly"),
		State:       statePtr(model.StateInProgress),
		DueDate:     &due,
		CreatedDate: baseTime,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected item ID to be set")
	}
	if created.ListID != list.ID {
		t.Fatalf("expected listId %q, got %q", list.ID, created.ListID)
	}

	got, err := s.GetItem(context.Background(), list.ID, created.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Name != "Write report" {
		t.Fatalf("expected name 'Write report', got %q", got.Name)
	}
	if got.State == nil || *got.State != model.StateInProgress {
		t.Fatalf("expected state inprogress, got %v", got.State)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("expected dueDate %v, got %v", due, got.DueDate)
	}
	if got.CompletedDate != nil {
		t.Fatalf("expected no completedDate, got %v", got.CompletedDate)
	}
	if got.CreatedDate == nil || !got.CreatedDate.Equal(baseTime) {
		t.Fatalf("expected createdDate %v, got %v", baseTime, got.CreatedDate)
	}
}

func testGetItemScopedToList(t *testing.T, _ Harness, s store.Store) {
	first := mustCreateList(t, s, "First")
	second := mustCreateList(t, s, "Second")
	item := mustCreateItem(t, s, first.ID, "Scoped", nil)

	if _, err := s.GetItem(context.Background(), second.ID, item.ID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found through another list, got %v", err)
	}
	if err := s.DeleteItem(context.Background(), second.ID, item.ID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found deleting through another list, got %v", err)
	}
}

func testListItemsByState(t *testing.T, _ Harness, s store.Store) {
	list := mustCreateList(t, s, "Mixed")
	other := mustCreateList(t, s, "Other")
	mustCreateItem(t, s, list.ID, "a", statePtr(model.StateTodo))
	mustCreateItem(t, s, list.ID, "b", statePtr(model.StateDone))
	mustCreateItem(t, s, list.ID, "c", statePtr(model.StateDone))
	mustCreateItem(t, s, list.ID, "d", nil)
	mustCreateItem(t, s, other.ID, "e", statePtr(model.StateDone))

	all, err := s.ListItems(context.Background(), model.ItemFilter{ListID: list.ID}, model.Page{})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 items in list, got %d", len(all))
	}

	filter := model.ItemFilter{ListID: list.ID, State: statePtr(model.StateDone)}
	done, err := s.ListItems(context.Background(), filter, model.Page{})
	if err != nil {
		t.Fatalf("list done items: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("expected 2 done items, got %d", len(done))
	}
	for _, item := range done {
		if !filter.Matches(item) {
			t.Fatalf("item %q of list %q in state %v does not match filter", item.Name, item.ListID, item.State)
		}
	}

	one := 1
	paged, err := s.ListItems(context.Background(), model.ItemFilter{ListID: list.ID, State: statePtr(model.StateDone)}, model.Page{Top: &one, Skip: &one})
	if err != nil {
		t.Fatalf("list paged items: %v", err)
	}
	if len(paged) != 1 || paged[0].Name != "c" {
		t.Fatalf("expected only item 'c', got %v", paged)
	}
}

func testUpdateItemPartial(t *testing.T, _ Harness, s store.Store) {
	list := mustCreateList(t, s, "Home")
	created, err := s.CreateItem(context.Background(), list.ID, model.NewItem{
		Name:        "Paint fence",
		Description: strPtr("white"),
		State:       statePtr(model.StateTodo),
		CreatedDate: baseTime,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	completed := baseTime.Add(2 * time.Hour)
	later := baseTime.Add(3 * time.Hour)
	updated, err := s.UpdateItem(context.Background(), list.ID, created.ID, model.ItemPatch{
		State:         model.Some(statePtr(model.StateDone)),
		CompletedDate: model.Some(&completed),
		UpdatedDate:   later,
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.State == nil || *updated.State != model.StateDone {
		t.Fatalf("expected state done, got %v", updated.State)
	}

	got, err := s.GetItem(context.Background(), list.ID, created.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Name != "Paint fence" {
		t.Fatalf("expected name to be unchanged, got %q", got.Name)
	}
	if got.Description == nil || *got.Description != "white" {
		t.Fatalf("expected description to be unchanged, got %v", got.Description)
	}
	if got.CompletedDate == nil || !got.CompletedDate.Equal(completed) {
		t.Fatalf("expected completedDate %v, got %v", completed, got.CompletedDate)
	}
	if got.UpdatedDate == nil || !got.UpdatedDate.Equal(later) {
		t.Fatalf("expected updatedDate %v, got %v", later, got.UpdatedDate)
	}

	if _, err := s.UpdateItem(context.Background(), list.ID, created.ID, model.ItemPatch{
		Description: model.Optional[*string]{Set: true, Null: true},
		UpdatedDate: later,
	}); err != nil {
		t.Fatalf("clear description: %v", err)
	}
	got, err = s.GetItem(context.Background(), list.ID, created.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Description != nil {
		t.Fatalf("expected description to be cleared, got %v", *got.Description)
	}
}

func testDeleteItem(t *testing.T, h Harness, s store.Store) {
	list := mustCreateList(t, s, "Short lived")
	item := mustCreateItem(t, s, list.ID, "Gone soon", nil)

	if err := s.DeleteItem(context.Background(), list.ID, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if _, err := s.GetItem(context.Background(), list.ID, item.ID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.DeleteItem(context.Background(), list.ID, h.MissingID); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found for missing item, got %v", err)
	}
}

func testSetItemsState(t *testing.T, _ Harness, s store.Store) {
	list := mustCreateList(t, s, "Sprint")
	a := mustCreateItem(t, s, list.ID, "a", statePtr(model.StateTodo))
	b := mustCreateItem(t, s, list.ID, "b", nil)

	at := baseTime.Add(time.Hour)
	updated, err := s.SetItemsState(context.Background(), list.ID, []model.ID{a.ID, b.ID}, model.StateInProgress, at)
	if err != nil {
		t.Fatalf("set items state: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("expected 2 updated items, got %d", len(updated))
	}

	for _, id := range []model.ID{a.ID, b.ID} {
		got, err := s.GetItem(context.Background(), list.ID, id)
		if err != nil {
			t.Fatalf("get item %s: %v", id, err)
		}
		if got.State == nil || *got.State != model.StateInProgress {
			t.Fatalf("expected item %s to be inprogress, got %v", id, got.State)
		}
		if got.UpdatedDate == nil || !got.UpdatedDate.Equal(at) {
			t.Fatalf("expected item %s updatedDate %v, got %v", id, at, got.UpdatedDate)
		}
	}
}

func testSetItemsStateMissing(t *testing.T, h Harness, s store.Store) {
	list := mustCreateList(t, s, "Batch")
	other := mustCreateList(t, s, "Elsewhere")
	a := mustCreateItem(t, s, list.ID, "a", statePtr(model.StateTodo))
	foreign := mustCreateItem(t, s, other.ID, "foreign", statePtr(model.StateTodo))

	for _, ids := range [][]model.ID{
		{a.ID, h.MissingID},
		{a.ID, foreign.ID},
	} {
		_, err := s.SetItemsState(context.Background(), list.ID, ids, model.StateDone, baseTime.Add(time.Hour))
		if !errors.Is(err, errors.NotFound) {
			t.Fatalf("expected not found for batch %v, got %v", ids, err)
		}

		got, err := s.GetItem(context.Background(), list.ID, a.ID)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if got.State == nil || *got.State != model.StateTodo {
			t.Fatalf("expected earlier item to keep state todo, got %v", got.State)
		}
		if got.UpdatedDate != nil {
			t.Fatalf("expected earlier item to be untouched, got updatedDate %v", got.UpdatedDate)
		}
	}
}

// testWritesReadBack writes sub-millisecond timestamps and expects every
// write to answer with what a later read returns.
func testWritesReadBack(t *testing.T, _ Harness, s store.Store) {
	ctx := context.Background()
	precise := baseTime.Add(123456789 * time.Nanosecond)

	list, err := s.CreateList(ctx, model.NewList{Name: "Precise", Description: strPtr("d"), CreatedDate: precise})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	assertListReadsBack(t, s, list)

	list, err = s.UpdateList(ctx, list.ID, model.ListPatch{
		Description: model.Some[*string](nil),
		UpdatedDate: precise.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("update list: %v", err)
	}
	if list.Description != nil {
		t.Fatalf("expected description cleared, got %q", *list.Description)
	}
	assertListReadsBack(t, s, list)

	due := precise.Add(time.Hour)
	item, err := s.CreateItem(ctx, list.ID, model.NewItem{Name: "a", DueDate: &due, CreatedDate: precise})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	assertItemReadsBack(t, s, item)

	item, err = s.UpdateItem(ctx, list.ID, item.ID, model.ItemPatch{
		State:       model.Some(statePtr(model.StateInProgress)),
		UpdatedDate: precise.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	assertItemReadsBack(t, s, item)

	updated, err := s.SetItemsState(ctx, list.ID, []model.ID{item.ID}, model.StateDone, precise.Add(3*time.Second))
	if err != nil {
		t.Fatalf("set items state: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated item, got %d", len(updated))
	}
	assertItemReadsBack(t, s, updated[0])
}

func assertListReadsBack(t *testing.T, s store.Store, written model.TodoList) {
	t.Helper()
	read, err := s.GetList(context.Background(), written.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if !sameTime(read.CreatedDate, written.CreatedDate) || !sameTime(read.UpdatedDate, written.UpdatedDate) {
		t.Fatalf("list dates differ: wrote %v/%v, read %v/%v", written.CreatedDate, written.UpdatedDate, read.CreatedDate, read.UpdatedDate)
	}
	if (read.Description == nil) != (written.Description == nil) {
		t.Fatalf("list description differs: wrote %v, read %v", written.Description, read.Description)
	}
}

func assertItemReadsBack(t *testing.T, s store.Store, written model.TodoItem) {
	t.Helper()
	read, err := s.GetItem(context.Background(), written.ListID, written.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !sameTime(read.CreatedDate, written.CreatedDate) || !sameTime(read.UpdatedDate, written.UpdatedDate) || !sameTime(read.DueDate, written.DueDate) {
		t.Fatalf("item dates differ: wrote %+v, read %+v", written, read)
	}
	if stateOf(read.State) != stateOf(written.State) {
		t.Fatalf("item state differs: wrote %q, read %q", stateOf(written.State), stateOf(read.State))
	}
}

func stateOf(state *model.State) model.State {
	if state == nil {
		return ""
	}
	return *state
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
