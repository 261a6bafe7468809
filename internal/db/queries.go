package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db      DBTX
	dialect Dialect
}

func NewQueries(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

type TodoList struct {
	ID          int64
	Name        string
	Description sql.NullString
	CreatedDate sql.NullTime
	UpdatedDate sql.NullTime
}

type TodoItem struct {
	ID            int64
	ListID        int64
	Name          string
	Description   sql.NullString
	State         sql.NullString
	DueDate       sql.NullTime
	CompletedDate sql.NullTime
	CreatedDate   sql.NullTime
	UpdatedDate   sql.NullTime
}

const todoListColumns = "id, name, description, created_date, updated_date"

const todoItemColumns = "id, list_id, name, description, state, due_date, completed_date, created_date, updated_date"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodoList(row rowScanner) (TodoList, error) {
	var i TodoList
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedDate, &i.UpdatedDate)
	return i, err
}

func scanTodoItem(row rowScanner) (TodoItem, error) {
	var i TodoItem
	err := row.Scan(
		&i.ID,
		&i.ListID,
		&i.Name,
		&i.Description,
		&i.State,
		&i.DueDate,
		&i.CompletedDate,
		&i.CreatedDate,
		&i.UpdatedDate,
	)
	return i, err
}

const createTodoList = `INSERT INTO todolist (name, description, created_date, updated_date)
VALUES (?, ?, ?, ?)
RETURNING id`

type CreateTodoListParams struct {
	Name        string
	Description sql.NullString
	CreatedDate sql.NullTime
	UpdatedDate sql.NullTime
}

func (q *Queries) CreateTodoList(ctx context.Context, arg CreateTodoListParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.rebind(createTodoList),
		arg.Name,
		arg.Description,
		arg.CreatedDate,
		arg.UpdatedDate,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getTodoList = `SELECT ` + todoListColumns + ` FROM todolist WHERE id = ?`

func (q *Queries) GetTodoList(ctx context.Context, id int64) (TodoList, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.rebind(getTodoList), id)
	return scanTodoList(row)
}

const listTodoLists = `SELECT ` + todoListColumns + ` FROM todolist ORDER BY id`

type ListTodoListsParams struct {
	Top  *int
	Skip *int
}

func (q *Queries) ListTodoLists(ctx context.Context, arg ListTodoListsParams) ([]TodoList, error) {
	query, args := q.dialect.paginate(listTodoLists, nil, arg.Top, arg.Skip)
	rows, err := q.db.QueryContext(ctx, q.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TodoList{}
	for rows.Next() {
		i, err := scanTodoList(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateTodoList = `UPDATE todolist SET name = ?, description = ?, updated_date = ? WHERE id = ?`

type UpdateTodoListParams struct {
	Name        string
	Description sql.NullString
	UpdatedDate sql.NullTime
	ID          int64
}

func (q *Queries) UpdateTodoList(ctx context.Context, arg UpdateTodoListParams) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(updateTodoList),
		arg.Name,
		arg.Description,
		arg.UpdatedDate,
		arg.ID,
	)
	return err
}

const deleteTodoList = `DELETE FROM todolist WHERE id = ?`

func (q *Queries) DeleteTodoList(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(deleteTodoList), id)
	return err
}

const createTodoItem = `INSERT INTO todoitem (list_id, name, description, state, due_date, completed_date, created_date)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id`

type CreateTodoItemParams struct {
	ListID        int64
	Name          string
	Description   sql.NullString
	State         sql.NullString
	DueDate       sql.NullTime
	CompletedDate sql.NullTime
	CreatedDate   sql.NullTime
}

func (q *Queries) CreateTodoItem(ctx context.Context, arg CreateTodoItemParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.rebind(createTodoItem),
		arg.ListID,
		arg.Name,
		arg.Description,
		arg.State,
		arg.DueDate,
		arg.CompletedDate,
		arg.CreatedDate,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getTodoItem = `SELECT ` + todoItemColumns + ` FROM todoitem WHERE list_id = ? AND id = ?`

func (q *Queries) GetTodoItem(ctx context.Context, listID, id int64) (TodoItem, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.rebind(getTodoItem), listID, id)
	return scanTodoItem(row)
}

const listTodoItems = `SELECT ` + todoItemColumns + ` FROM todoitem WHERE list_id = ?`

type ListTodoItemsParams struct {
	ListID int64
	State  sql.NullString
	Top    *int
	Skip   *int
}

func (q *Queries) ListTodoItems(ctx context.Context, arg ListTodoItemsParams) ([]TodoItem, error) {
	query := listTodoItems
	args := []any{arg.ListID}
	if arg.State.Valid {
		query += " AND state = ?"
		args = append(args, arg.State.String)
	}
	query += " ORDER BY id"
	query, args = q.dialect.paginate(query, args, arg.Top, arg.Skip)

	rows, err := q.db.QueryContext(ctx, q.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TodoItem{}
	for rows.Next() {
		i, err := scanTodoItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateTodoItem = `UPDATE todoitem
SET name = ?, description = ?, state = ?, due_date = ?, completed_date = ?, updated_date = ?
WHERE list_id = ? AND id = ?`

type UpdateTodoItemParams struct {
	Name          string
	Description   sql.NullString
	State         sql.NullString
	DueDate       sql.NullTime
	CompletedDate sql.NullTime
	UpdatedDate   sql.NullTime
	ListID        int64
	ID            int64
}

func (q *Queries) UpdateTodoItem(ctx context.Context, arg UpdateTodoItemParams) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(updateTodoItem),
		arg.Name,
		arg.Description,
		arg.State,
		arg.DueDate,
		arg.CompletedDate,
		arg.UpdatedDate,
		arg.ListID,
		arg.ID,
	)
	return err
}

const deleteTodoItem = `DELETE FROM todoitem WHERE list_id = ? AND id = ?`

func (q *Queries) DeleteTodoItem(ctx context.Context, listID, id int64) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(deleteTodoItem), listID, id)
	return err
}
