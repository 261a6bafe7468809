package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/juju/errors"
)

type State string

const (
	StateTodo       State = "todo"
	StateInProgress State = "inprogress"
	StateDone       State = "done"
)

var States = []State{StateTodo, StateInProgress, StateDone}

// ParseState accepts the enumeration values in any letter case.
func ParseState(value string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	if !state.Valid() {
		return "", errors.NotValidf("state %q", value)
	}
	return state, nil
}

func (s State) Valid() bool {
	switch s {
	case StateTodo, StateInProgress, StateDone:
		return true
	}
	return false
}

type TodoList struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedDate *time.Time `json:"createdDate,omitempty"`
	UpdatedDate *time.Time `json:"updatedDate,omitempty"`
}

type TodoItem struct {
	ID            ID         `json:"id"`
	ListID        ID         `json:"listId"`
	Name          string     `json:"name"`
	Description   *string    `json:"description,omitempty"`
	State         *State     `json:"state,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
	CreatedDate   *time.Time `json:"createdDate,omitempty"`
	UpdatedDate   *time.Time `json:"updatedDate,omitempty"`
}

// NewList is the create shape of a list. CreatedDate is stamped by the
// handler, never decoded from the request.
type NewList struct {
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedDate time.Time `json:"-"`
}

// UnmarshalJSON requires the name to be present and not null. An empty
// string is a valid name.
func (l *NewList) UnmarshalJSON(data []byte) error {
	type fields NewList
	var body struct {
		fields
		Name Optional[string] `json:"name"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	name, err := requiredName(body.Name)
	if err != nil {
		return err
	}
	*l = NewList(body.fields)
	l.Name = name
	return nil
}

type NewItem struct {
	Name          string     `json:"name"`
	Description   *string    `json:"description"`
	State         *State     `json:"state" validate:"omitempty,oneof=todo inprogress done"`
	DueDate       *time.Time `json:"dueDate"`
	CompletedDate *time.Time `json:"completedDate"`
	CreatedDate   time.Time  `json:"-"`
}

func (i *NewItem) UnmarshalJSON(data []byte) error {
	type fields NewItem
	var body struct {
		fields
		Name Optional[string] `json:"name"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	name, err := requiredName(body.Name)
	if err != nil {
		return err
	}
	*i = NewItem(body.fields)
	i.Name = name
	return nil
}

func requiredName(name Optional[string]) (string, error) {
	switch {
	case !name.Set:
		return "", errors.NotValidf("missing name")
	case name.Null:
		return "", errors.NotValidf("name: null")
	}
	return name.Value, nil
}

// ListPatch holds the fields of a list update. Only fields present in the
// request body are applied.
type ListPatch struct {
	Name        Optional[string]  `json:"name"`
	Description Optional[*string] `json:"description"`
	UpdatedDate time.Time         `json:"-"`
}

func (p ListPatch) Validate() error {
	if p.Name.Set && p.Name.Null {
		return errors.NotValidf("name: null")
	}
	return nil
}

// Apply overwrites the present fields of list and stamps UpdatedDate.
func (p ListPatch) Apply(list *TodoList) {
	if p.Name.Set {
		list.Name = p.Name.Value
	}
	if p.Description.Set {
		list.Description = p.Description.Value
	}
	updated := p.UpdatedDate
	list.UpdatedDate = &updated
}

type ItemPatch struct {
	Name          Optional[string]     `json:"name"`
	Description   Optional[*string]    `json:"description"`
	State         Optional[*State]     `json:"state"`
	DueDate       Optional[*time.Time] `json:"dueDate"`
	CompletedDate Optional[*time.Time] `json:"completedDate"`
	UpdatedDate   time.Time            `json:"-"`
}

func (p ItemPatch) Validate() error {
	if p.Name.Set && p.Name.Null {
		return errors.NotValidf("name: null")
	}
	if p.State.Set && p.State.Value != nil && !p.State.Value.Valid() {
		return errors.NotValidf("state %q", *p.State.Value)
	}
	return nil
}

func (p ItemPatch) Apply(item *TodoItem) {
	if p.Name.Set {
		item.Name = p.Name.Value
	}
	if p.Description.Set {
		item.Description = p.Description.Value
	}
	if p.State.Set {
		item.State = p.State.Value
	}
	if p.DueDate.Set {
		item.DueDate = p.DueDate.Value
	}
	if p.CompletedDate.Set {
		item.CompletedDate = p.CompletedDate.Value
	}
	updated := p.UpdatedDate
	item.UpdatedDate = &updated
}

// Page bounds a listing. Nil fields impose no bound.
type Page struct {
	Top  *int `schema:"top" validate:"omitempty,min=0"`
	Skip *int `schema:"skip" validate:"omitempty,min=0"`
}

// Window returns the slice bounds of page over n ordered elements.
func (p Page) Window(n int) (int, int) {
	start := 0
	if p.Skip != nil {
		start = min(*p.Skip, n)
	}
	end := n
	if p.Top != nil {
		end = min(start+*p.Top, n)
	}
	return start, end
}

// ItemFilter is a conjunction of equality predicates. ListID is always set.
type ItemFilter struct {
	ListID ID
	State  *State
}

func (f ItemFilter) Matches(item TodoItem) bool {
	if item.ListID != f.ListID {
		return false
	}
	if f.State != nil {
		return item.State != nil && *item.State == *f.State
	}
	return true
}
