package tui

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
)

type formKind int

const (
	formList formKind = iota
	formItem
)

type formField struct {
	Label  string
	Value  string
	choice bool
}

type formState struct {
	kind   formKind
	id     model.ID
	listID model.ID
	fields []formField
	index  int
}

const (
	fieldName = iota
	fieldDescription
	fieldState
	fieldDue
)

const dueLayout = "2006-01-02"

func (f *formState) title() string {
	switch {
	case f.kind == formList && f.id == "":
		return "New List"
	case f.kind == formList:
		return "Edit List"
	case f.id == "":
		return "New Item"
	default:
		return "Edit Item"
	}
}

func listFormFields(list *model.TodoList) []formField {
	fields := []formField{
		{Label: "Name"},
		{Label: "Description"},
	}
	if list == nil {
		return fields
	}
	fields[fieldName].Value = list.Name
	if list.Description != nil {
		fields[fieldDescription].Value = *list.Description
	}
	return fields
}

func itemFormFields(item *model.TodoItem) []formField {
	fields := []formField{
		{Label: "Name"},
		{Label: "Description"},
		{Label: "State (space/←→)", choice: true},
		{Label: "Due (YYYY-MM-DD)"},
	}
	if item == nil {
		fields[fieldState].Value = string(model.StateTodo)
		return fields
	}
	fields[fieldName].Value = item.Name
	if item.Description != nil {
		fields[fieldDescription].Value = *item.Description
	}
	if item.State != nil {
		fields[fieldState].Value = string(*item.State)
	}
	if item.DueDate != nil {
		fields[fieldDue].Value = item.DueDate.Format(dueLayout)
	}
	return fields
}

// save creates or updates the entity behind the form. Every field of the
// form is written, so clearing a field clears the stored value.
func (f *formState) save(ctx context.Context, s store.Store, now time.Time) error {
	name := strings.TrimSpace(f.fields[fieldName].Value)
	if name == "" {
		return errors.NotValidf("empty name")
	}
	description := optionalText(f.fields[fieldDescription].Value)

	if f.kind == formList {
		if f.id == "" {
			_, err := s.CreateList(ctx, model.NewList{Name: name, Description: description, CreatedDate: now})
			return err
		}
		_, err := s.UpdateList(ctx, f.id, model.ListPatch{
			Name:        model.Some(name),
			Description: model.Some(description),
			UpdatedDate: now,
		})
		return err
	}

	state, err := parseStateField(f.fields[fieldState].Value)
	if err != nil {
		return err
	}
	due, err := parseDue(f.fields[fieldDue].Value)
	if err != nil {
		return err
	}
	if f.id == "" {
		_, err := s.CreateItem(ctx, f.listID, model.NewItem{
			Name:        name,
			Description: description,
			State:       state,
			DueDate:     due,
			CreatedDate: now,
		})
		return err
	}
	_, err = s.UpdateItem(ctx, f.listID, f.id, model.ItemPatch{
		Name:        model.Some(name),
		Description: model.Some(description),
		State:       model.Some(state),
		DueDate:     model.Some(due),
		UpdatedDate: now,
	})
	return err
}

func optionalText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseStateField(value string) (*model.State, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	state, err := model.ParseState(value)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func parseDue(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dueLayout, trimmed)
	if err != nil {
		return nil, errors.NotValidf("due date %q", trimmed)
	}
	return &parsed, nil
}

// cycleState steps through the item states in form order, including the
// empty value for an item without state.
func cycleState(current string, delta int) string {
	order := []string{"", string(model.StateTodo), string(model.StateInProgress), string(model.StateDone)}
	value := strings.TrimSpace(strings.ToLower(current))
	index := 0
	for i, state := range order {
		if state == value {
			index = i
			break
		}
	}
	index = (index + delta + len(order)) % len(order)
	return order[index]
}

func nextState(current *model.State) model.State {
	if current == nil {
		return model.StateTodo
	}
	for i, state := range model.States {
		if state == *current {
			return model.States[(i+1)%len(model.States)]
		}
	}
	return model.StateTodo
}

// nextFilter cycles nil, todo, inprogress, done and back to nil.
func nextFilter(current *model.State) *model.State {
	if current == nil {
		state := model.States[0]
		return &state
	}
	for i, state := range model.States {
		if state == *current && i+1 < len(model.States) {
			next := model.States[i+1]
			return &next
		}
	}
	return nil
}
