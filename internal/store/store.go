// Package store defines the persistence contract shared by the relational
// and document backends.
package store

import (
	"context"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
)

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/store_mock.go github.com/Joseda-hg/todoapi/internal/store Store

// Store persists todo lists and items. Lookups of absent entities return an
// error satisfying errors.Is(err, errors.NotFound); identifiers the backend
// cannot parse return errors.NotValid.
type Store interface {
	CreateList(ctx context.Context, input model.NewList) (model.TodoList, error)
	GetList(ctx context.Context, id model.ID) (model.TodoList, error)
	ListLists(ctx context.Context, page model.Page) ([]model.TodoList, error)
	UpdateList(ctx context.Context, id model.ID, patch model.ListPatch) (model.TodoList, error)
	DeleteList(ctx context.Context, id model.ID) error

	CreateItem(ctx context.Context, listID model.ID, input model.NewItem) (model.TodoItem, error)
	GetItem(ctx context.Context, listID, itemID model.ID) (model.TodoItem, error)
	ListItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]model.TodoItem, error)
	UpdateItem(ctx context.Context, listID, itemID model.ID, patch model.ItemPatch) (model.TodoItem, error)
	DeleteItem(ctx context.Context, listID, itemID model.ID) error

	// SetItemsState moves every item in itemIDs to state. Either all items
	// are updated or none is: a missing item fails the call with NotFound
	// and leaves the stored items untouched.
	SetItemsState(ctx context.Context, listID model.ID, itemIDs []model.ID, state model.State, at time.Time) ([]model.TodoItem, error)

	Ping(ctx context.Context) error
	Close() error
}

func ListNotFound(id model.ID) error {
	return errors.NotFoundf("todo list %q", id)
}

func ItemNotFound(id model.ID) error {
	return errors.NotFoundf("todo item %q", id)
}

// DedupIDs drops repeated identifiers while keeping the first occurrence order.
func DedupIDs(ids []model.ID) []model.ID {
	seen := set.NewStrings()
	result := make([]model.ID, 0, len(ids))
	for _, id := range ids {
		if seen.Contains(string(id)) {
			continue
		}
		seen.Add(string(id))
		result = append(result, id)
	}
	return result
}
