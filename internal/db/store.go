package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
)

// Store is the relational store.Store. Every call checks a connection out of
// the pool for its own duration; read-modify-write paths run in a transaction.
type Store struct {
	DB      *sql.DB
	Queries *Queries
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{DB: db, Queries: NewQueries(db, dialect)}
}

func (s *Store) CreateList(ctx context.Context, input model.NewList) (model.TodoList, error) {
	var created model.TodoList
	err := s.withTx(ctx, func(q *Queries) error {
		id, err := q.CreateTodoList(ctx, CreateTodoListParams{
			Name:        input.Name,
			Description: nullString(input.Description),
			CreatedDate: nullTime(&input.CreatedDate),
			UpdatedDate: nullTime(&input.CreatedDate),
		})
		if err != nil {
			return errors.Annotate(err, "insert todo list")
		}
		row, err := q.GetTodoList(ctx, id)
		if err != nil {
			return errors.Annotatef(err, "reload todo list %d", id)
		}
		created = mapList(row)
		return nil
	})
	return created, errors.Trace(err)
}

func (s *Store) GetList(ctx context.Context, id model.ID) (model.TodoList, error) {
	key, err := id.Int64()
	if err != nil {
		return model.TodoList{}, errors.Trace(err)
	}
	row, err := s.Queries.GetTodoList(ctx, key)
	if err != nil {
		return model.TodoList{}, listError(err, id)
	}
	return mapList(row), nil
}

func (s *Store) ListLists(ctx context.Context, page model.Page) ([]model.TodoList, error) {
	rows, err := s.Queries.ListTodoLists(ctx, ListTodoListsParams{Top: page.Top, Skip: page.Skip})
	if err != nil {
		return nil, errors.Annotate(err, "list todo lists")
	}
	result := make([]model.TodoList, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapList(row))
	}
	return result, nil
}

func (s *Store) UpdateList(ctx context.Context, id model.ID, patch model.ListPatch) (model.TodoList, error) {
	key, err := id.Int64()
	if err != nil {
		return model.TodoList{}, errors.Trace(err)
	}

	var updated model.TodoList
	err = s.withTx(ctx, func(q *Queries) error {
		row, err := q.GetTodoList(ctx, key)
		if err != nil {
			return listError(err, id)
		}
		list := mapList(row)
		patch.Apply(&list)

		if err := q.UpdateTodoList(ctx, UpdateTodoListParams{
			Name:        list.Name,
			Description: nullString(list.Description),
			UpdatedDate: nullTime(list.UpdatedDate),
			ID:          key,
		}); err != nil {
			return errors.Annotatef(err, "update todo list %d", key)
		}
		row, err = q.GetTodoList(ctx, key)
		if err != nil {
			return errors.Annotatef(err, "reload todo list %d", key)
		}
		updated = mapList(row)
		return nil
	})
	return updated, errors.Trace(err)
}

// DeleteList removes the list only. Items referencing it are kept.
func (s *Store) DeleteList(ctx context.Context, id model.ID) error {
	key, err := id.Int64()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.withTx(ctx, func(q *Queries) error {
		if _, err := q.GetTodoList(ctx, key); err != nil {
			return listError(err, id)
		}
		return errors.Annotatef(q.DeleteTodoList(ctx, key), "delete todo list %d", key)
	}))
}

func (s *Store) CreateItem(ctx context.Context, listID model.ID, input model.NewItem) (model.TodoItem, error) {
	listKey, err := listID.Int64()
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}

	var created model.TodoItem
	err = s.withTx(ctx, func(q *Queries) error {
		id, err := q.CreateTodoItem(ctx, CreateTodoItemParams{
			ListID:        listKey,
			Name:          input.Name,
			Description:   nullString(input.Description),
			State:         nullState(input.State),
			DueDate:       nullTime(input.DueDate),
			CompletedDate: nullTime(input.CompletedDate),
			CreatedDate:   nullTime(&input.CreatedDate),
		})
		if err != nil {
			return errors.Annotate(err, "insert todo item")
		}
		row, err := q.GetTodoItem(ctx, listKey, id)
		if err != nil {
			return errors.Annotatef(err, "reload todo item %d", id)
		}
		created = mapItem(row)
		return nil
	})
	return created, errors.Trace(err)
}

func (s *Store) GetItem(ctx context.Context, listID, itemID model.ID) (model.TodoItem, error) {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}
	row, err := s.Queries.GetTodoItem(ctx, listKey, itemKey)
	if err != nil {
		return model.TodoItem{}, itemError(err, itemID)
	}
	return mapItem(row), nil
}

func (s *Store) ListItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]model.TodoItem, error) {
	listKey, err := filter.ListID.Int64()
	if err != nil {
		return nil, errors.Trace(err)
	}
	rows, err := s.Queries.ListTodoItems(ctx, ListTodoItemsParams{
		ListID: listKey,
		State:  nullState(filter.State),
		Top:    page.Top,
		Skip:   page.Skip,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "list todo items of list %d", listKey)
	}
	result := make([]model.TodoItem, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapItem(row))
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, listID, itemID model.ID, patch model.ItemPatch) (model.TodoItem, error) {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}

	var updated model.TodoItem
	err = s.withTx(ctx, func(q *Queries) error {
		item, err := q.GetTodoItem(ctx, listKey, itemKey)
		if err != nil {
			return itemError(err, itemID)
		}
		result := mapItem(item)
		patch.Apply(&result)
		if err := saveItem(ctx, q, listKey, itemKey, result); err != nil {
			return err
		}
		reloaded, err := q.GetTodoItem(ctx, listKey, itemKey)
		if err != nil {
			return errors.Annotatef(err, "reload todo item %d", itemKey)
		}
		updated = mapItem(reloaded)
		return nil
	})
	return updated, errors.Trace(err)
}

func (s *Store) DeleteItem(ctx context.Context, listID, itemID model.ID) error {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.withTx(ctx, func(q *Queries) error {
		if _, err := q.GetTodoItem(ctx, listKey, itemKey); err != nil {
			return itemError(err, itemID)
		}
		return errors.Annotatef(q.DeleteTodoItem(ctx, listKey, itemKey), "delete todo item %d", itemKey)
	}))
}

// SetItemsState runs the whole batch in one transaction; the first missing
// item rolls back every earlier change.
func (s *Store) SetItemsState(ctx context.Context, listID model.ID, itemIDs []model.ID, state model.State, at time.Time) ([]model.TodoItem, error) {
	listKey, err := listID.Int64()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := store.DedupIDs(itemIDs)
	keys := make([]int64, 0, len(ids))
	for _, id := range ids {
		key, err := id.Int64()
		if err != nil {
			return nil, errors.Trace(err)
		}
		keys = append(keys, key)
	}

	results := make([]model.TodoItem, 0, len(keys))
	err = s.withTx(ctx, func(q *Queries) error {
		for i, key := range keys {
			row, err := q.GetTodoItem(ctx, listKey, key)
			if err != nil {
				return itemError(err, ids[i])
			}
			item := mapItem(row)
			itemState := state
			updatedDate := at
			item.State = &itemState
			item.UpdatedDate = &updatedDate
			if err := saveItem(ctx, q, listKey, key, item); err != nil {
				return err
			}
			reloaded, err := q.GetTodoItem(ctx, listKey, key)
			if err != nil {
				return errors.Annotatef(err, "reload todo item %d", key)
			}
			results = append(results, mapItem(reloaded))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Trace(s.DB.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin transaction")
	}
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Annotate(tx.Commit(), "commit transaction")
}

func saveItem(ctx context.Context, q *Queries, listKey, itemKey int64, item model.TodoItem) error {
	err := q.UpdateTodoItem(ctx, UpdateTodoItemParams{
		Name:          item.Name,
		Description:   nullString(item.Description),
		State:         nullState(item.State),
		DueDate:       nullTime(item.DueDate),
		CompletedDate: nullTime(item.CompletedDate),
		UpdatedDate:   nullTime(item.UpdatedDate),
		ListID:        listKey,
		ID:            itemKey,
	})
	return errors.Annotatef(err, "update todo item %d", itemKey)
}

func itemKeys(listID, itemID model.ID) (int64, int64, error) {
	listKey, err := listID.Int64()
	if err != nil {
		return 0, 0, err
	}
	itemKey, err := itemID.Int64()
	if err != nil {
		return 0, 0, err
	}
	return listKey, itemKey, nil
}

func listError(err error, id model.ID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ListNotFound(id)
	}
	return errors.Annotatef(err, "get todo list %s", id)
}

func itemError(err error, id model.ID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ItemNotFound(id)
	}
	return errors.Annotatef(err, "get todo item %s", id)
}

func mapList(row TodoList) model.TodoList {
	return model.TodoList{
		ID:          model.IDFromInt64(row.ID),
		Name:        row.Name,
		Description: stringPtr(row.Description),
		CreatedDate: timePtr(row.CreatedDate),
		UpdatedDate: timePtr(row.UpdatedDate),
	}
}

func mapItem(row TodoItem) model.TodoItem {
	result := model.TodoItem{
		ID:            model.IDFromInt64(row.ID),
		ListID:        model.IDFromInt64(row.ListID),
		Name:          row.Name,
		Description:   stringPtr(row.Description),
		DueDate:       timePtr(row.DueDate),
		CompletedDate: timePtr(row.CompletedDate),
		CreatedDate:   timePtr(row.CreatedDate),
		UpdatedDate:   timePtr(row.UpdatedDate),
	}
	if row.State.Valid {
		state := model.State(row.State.String)
		result.State = &state
	}
	return result
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullState(value *model.State) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*value), Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	result := value.String
	return &result
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	result := value.Time.UTC()
	return &result
}
