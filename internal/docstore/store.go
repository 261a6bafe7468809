// Package docstore implements store.Store on MongoDB.
package docstore

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
)

var logger = loggo.GetLogger("todoapi.docstore")

const (
	todoListsC = "TodoList"
	todoItemsC = "TodoItem"
)

type todoListDoc struct {
	ID          bson.ObjectId `bson:"_id"`
	Name        string        `bson:"name"`
	Description *string       `bson:"description,omitempty"`
	CreatedDate *time.Time    `bson:"createdDate,omitempty"`
	UpdatedDate *time.Time    `bson:"updatedDate,omitempty"`
}

type todoItemDoc struct {
	ID            bson.ObjectId `bson:"_id"`
	ListID        bson.ObjectId `bson:"listId"`
	Name          string        `bson:"name"`
	Description   *string       `bson:"description,omitempty"`
	State         *string       `bson:"state,omitempty"`
	DueDate       *time.Time    `bson:"dueDate,omitempty"`
	CompletedDate *time.Time    `bson:"completedDate,omitempty"`
	CreatedDate   *time.Time    `bson:"createdDate,omitempty"`
	UpdatedDate   *time.Time    `bson:"updatedDate,omitempty"`
}

// Store is the MongoDB store.Store. The root session is copied for every
// operation and the copy closed before returning.
type Store struct {
	session  *mgo.Session
	database string

	// batchWrite, when set, replaces the per-item write of SetItemsState.
	batchWrite func(items *mgo.Collection, id bson.ObjectId, update bson.M) error
}

var _ store.Store = (*Store)(nil)

// Dial connects to url and prepares the indexes of database.
func Dial(url, database string, timeout time.Duration) (*Store, error) {
	session, err := mgo.DialWithTimeout(url, timeout)
	if err != nil {
		return nil, errors.Annotate(err, "dial mongo")
	}
	session.SetMode(mgo.Strong, true)

	s := NewStore(session, database)
	if err := s.ensureIndexes(); err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

func NewStore(session *mgo.Session, database string) *Store {
	return &Store{session: session, database: database}
}

func (s *Store) ensureIndexes() error {
	session := s.session.Copy()
	defer session.Close()

	items := session.DB(s.database).C(todoItemsC)
	if err := items.EnsureIndex(mgo.Index{Key: []string{"listId", "state"}}); err != nil {
		return errors.Annotate(err, "ensure todo item index")
	}
	return nil
}

// collection returns col on a fresh session copy and the func that releases it.
func (s *Store) collection(name string) (*mgo.Collection, func()) {
	session := s.session.Copy()
	return session.DB(s.database).C(name), session.Close
}

func (s *Store) CreateList(ctx context.Context, input model.NewList) (model.TodoList, error) {
	lists, closer := s.collection(todoListsC)
	defer closer()

	created := timePtr(input.CreatedDate)
	doc := todoListDoc{
		ID:          bson.NewObjectId(),
		Name:        input.Name,
		Description: input.Description,
		CreatedDate: created,
		UpdatedDate: created,
	}
	if err := lists.Insert(doc); err != nil {
		return model.TodoList{}, errors.Annotate(err, "insert todo list")
	}
	return mapList(doc), nil
}

func (s *Store) GetList(ctx context.Context, id model.ID) (model.TodoList, error) {
	key, err := objectID(id)
	if err != nil {
		return model.TodoList{}, errors.Trace(err)
	}
	lists, closer := s.collection(todoListsC)
	defer closer()

	var doc todoListDoc
	if err := lists.FindId(key).One(&doc); err == mgo.ErrNotFound {
		return model.TodoList{}, store.ListNotFound(id)
	} else if err != nil {
		return model.TodoList{}, errors.Annotatef(err, "get todo list %s", id)
	}
	return mapList(doc), nil
}

func (s *Store) ListLists(ctx context.Context, page model.Page) ([]model.TodoList, error) {
	if emptyPage(page) {
		return []model.TodoList{}, nil
	}
	lists, closer := s.collection(todoListsC)
	defer closer()

	var docs []todoListDoc
	if err := paginate(lists.Find(nil).Sort("_id"), page).All(&docs); err != nil {
		return nil, errors.Annotate(err, "list todo lists")
	}
	result := make([]model.TodoList, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapList(doc))
	}
	return result, nil
}

func (s *Store) UpdateList(ctx context.Context, id model.ID, patch model.ListPatch) (model.TodoList, error) {
	key, err := objectID(id)
	if err != nil {
		return model.TodoList{}, errors.Trace(err)
	}
	lists, closer := s.collection(todoListsC)
	defer closer()

	set := bson.M{"updatedDate": storedTime(patch.UpdatedDate)}
	unset := bson.M{}
	if patch.Name.Set {
		set["name"] = patch.Name.Value
	}
	setOrUnset(set, unset, "description", patch.Description.Set, patch.Description.Value)

	var doc todoListDoc
	_, err = lists.FindId(key).Apply(mgo.Change{
		Update:    updateDoc(set, unset),
		ReturnNew: true,
	}, &doc)
	if err == mgo.ErrNotFound {
		return model.TodoList{}, store.ListNotFound(id)
	} else if err != nil {
		return model.TodoList{}, errors.Annotatef(err, "update todo list %s", id)
	}
	return mapList(doc), nil
}

// DeleteList removes the list only. Items referencing it are kept.
func (s *Store) DeleteList(ctx context.Context, id model.ID) error {
	key, err := objectID(id)
	if err != nil {
		return errors.Trace(err)
	}
	lists, closer := s.collection(todoListsC)
	defer closer()

	if err := lists.RemoveId(key); err == mgo.ErrNotFound {
		return store.ListNotFound(id)
	} else if err != nil {
		return errors.Annotatef(err, "delete todo list %s", id)
	}
	return nil
}

func (s *Store) CreateItem(ctx context.Context, listID model.ID, input model.NewItem) (model.TodoItem, error) {
	listKey, err := objectID(listID)
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}
	items, closer := s.collection(todoItemsC)
	defer closer()

	doc := todoItemDoc{
		ID:            bson.NewObjectId(),
		ListID:        listKey,
		Name:          input.Name,
		Description:   input.Description,
		State:         stateString(input.State),
		DueDate:       utcPtr(input.DueDate),
		CompletedDate: utcPtr(input.CompletedDate),
		CreatedDate:   timePtr(input.CreatedDate),
	}
	if err := items.Insert(doc); err != nil {
		return model.TodoItem{}, errors.Annotate(err, "insert todo item")
	}
	return mapItem(doc), nil
}

func (s *Store) GetItem(ctx context.Context, listID, itemID model.ID) (model.TodoItem, error) {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}
	items, closer := s.collection(todoItemsC)
	defer closer()

	var doc todoItemDoc
	if err := items.Find(itemSelector(listKey, itemKey)).One(&doc); err == mgo.ErrNotFound {
		return model.TodoItem{}, store.ItemNotFound(itemID)
	} else if err != nil {
		return model.TodoItem{}, errors.Annotatef(err, "get todo item %s", itemID)
	}
	return mapItem(doc), nil
}

func (s *Store) ListItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]model.TodoItem, error) {
	listKey, err := objectID(filter.ListID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if emptyPage(page) {
		return []model.TodoItem{}, nil
	}
	items, closer := s.collection(todoItemsC)
	defer closer()

	query := bson.M{"listId": listKey}
	if filter.State != nil {
		query["state"] = string(*filter.State)
	}

	var docs []todoItemDoc
	if err := paginate(items.Find(query).Sort("_id"), page).All(&docs); err != nil {
		return nil, errors.Annotatef(err, "list todo items of list %s", filter.ListID)
	}
	result := make([]model.TodoItem, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapItem(doc))
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, listID, itemID model.ID, patch model.ItemPatch) (model.TodoItem, error) {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return model.TodoItem{}, errors.Trace(err)
	}
	items, closer := s.collection(todoItemsC)
	defer closer()

	set := bson.M{"updatedDate": storedTime(patch.UpdatedDate)}
	unset := bson.M{}
	if patch.Name.Set {
		set["name"] = patch.Name.Value
	}
	setOrUnset(set, unset, "description", patch.Description.Set, patch.Description.Value)
	setOrUnset(set, unset, "state", patch.State.Set, stateString(patch.State.Value))
	setOrUnset(set, unset, "dueDate", patch.DueDate.Set, utcPtr(patch.DueDate.Value))
	setOrUnset(set, unset, "completedDate", patch.CompletedDate.Set, utcPtr(patch.CompletedDate.Value))

	var doc todoItemDoc
	_, err = items.Find(itemSelector(listKey, itemKey)).Apply(mgo.Change{
		Update:    updateDoc(set, unset),
		ReturnNew: true,
	}, &doc)
	if err == mgo.ErrNotFound {
		return model.TodoItem{}, store.ItemNotFound(itemID)
	} else if err != nil {
		return model.TodoItem{}, errors.Annotatef(err, "update todo item %s", itemID)
	}
	return mapItem(doc), nil
}

func (s *Store) DeleteItem(ctx context.Context, listID, itemID model.ID) error {
	listKey, itemKey, err := itemKeys(listID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	items, closer := s.collection(todoItemsC)
	defer closer()

	if err := items.Remove(itemSelector(listKey, itemKey)); err == mgo.ErrNotFound {
		return store.ItemNotFound(itemID)
	} else if err != nil {
		return errors.Annotatef(err, "delete todo item %s", itemID)
	}
	return nil
}

// SetItemsState loads every item before writing, so a missing id fails the
// batch with nothing changed. Should a write fail part way, the items
// already written are restored to their previous state.
func (s *Store) SetItemsState(ctx context.Context, listID model.ID, itemIDs []model.ID, state model.State, at time.Time) ([]model.TodoItem, error) {
	listKey, err := objectID(listID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := store.DedupIDs(itemIDs)
	keys := make([]bson.ObjectId, 0, len(ids))
	for _, id := range ids {
		key, err := objectID(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		keys = append(keys, key)
	}

	items, closer := s.collection(todoItemsC)
	defer closer()

	before := make([]todoItemDoc, 0, len(keys))
	for i, key := range keys {
		var doc todoItemDoc
		if err := items.Find(itemSelector(listKey, key)).One(&doc); err == mgo.ErrNotFound {
			return nil, store.ItemNotFound(ids[i])
		} else if err != nil {
			return nil, errors.Annotatef(err, "get todo item %s", ids[i])
		}
		before = append(before, doc)
	}

	updatedDate := storedTime(at)
	results := make([]model.TodoItem, 0, len(before))
	for i, doc := range before {
		err := s.writeBatchItem(items, doc.ID, bson.M{"$set": bson.M{
			"state":       string(state),
			"updatedDate": updatedDate,
		}})
		if err != nil {
			s.restoreItems(items, before[:i])
			if err == mgo.ErrNotFound {
				return nil, store.ItemNotFound(ids[i])
			}
			return nil, errors.Annotatef(err, "update todo item %s", ids[i])
		}
		itemState := string(state)
		doc.State = &itemState
		doc.UpdatedDate = &updatedDate
		results = append(results, mapItem(doc))
	}
	return results, nil
}

func (s *Store) writeBatchItem(items *mgo.Collection, id bson.ObjectId, update bson.M) error {
	if s.batchWrite != nil {
		return s.batchWrite(items, id, update)
	}
	return items.UpdateId(id, update)
}

// restoreItems puts back the state and updatedDate of docs.
func (s *Store) restoreItems(items *mgo.Collection, docs []todoItemDoc) {
	for _, doc := range docs {
		set := bson.M{}
		unset := bson.M{}
		setOrUnset(set, unset, "state", true, doc.State)
		setOrUnset(set, unset, "updatedDate", true, doc.UpdatedDate)
		if err := items.UpdateId(doc.ID, updateDoc(set, unset)); err != nil {
			logger.Errorf("restoring todo item %s after failed batch: %v", doc.ID.Hex(), err)
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	session := s.session.Copy()
	defer session.Close()
	return errors.Trace(session.Ping())
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}

func paginate(query *mgo.Query, page model.Page) *mgo.Query {
	if page.Skip != nil {
		query = query.Skip(*page.Skip)
	}
	if page.Top != nil {
		query = query.Limit(*page.Top)
	}
	return query
}

// emptyPage reports whether page asks for no rows at all; mongo reads a
// zero limit as unbounded.
func emptyPage(page model.Page) bool {
	return page.Top != nil && *page.Top == 0
}

func objectID(id model.ID) (bson.ObjectId, error) {
	if !bson.IsObjectIdHex(string(id)) {
		return "", errors.NotValidf("id %q", string(id))
	}
	return bson.ObjectIdHex(string(id)), nil
}

func itemKeys(listID, itemID model.ID) (bson.ObjectId, bson.ObjectId, error) {
	listKey, err := objectID(listID)
	if err != nil {
		return "", "", err
	}
	itemKey, err := objectID(itemID)
	if err != nil {
		return "", "", err
	}
	return listKey, itemKey, nil
}

func itemSelector(listKey, itemKey bson.ObjectId) bson.M {
	return bson.M{"_id": itemKey, "listId": listKey}
}

// setOrUnset routes a present field to $set, or to $unset when its value is nil.
func setOrUnset[T any](set, unset bson.M, field string, present bool, value *T) {
	if !present {
		return
	}
	if value == nil {
		unset[field] = ""
		return
	}
	set[field] = *value
}

// updateDoc combines the $set and $unset parts of an update, leaving out
// empty operators.
func updateDoc(set, unset bson.M) bson.M {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func mapList(doc todoListDoc) model.TodoList {
	return model.TodoList{
		ID:          model.ID(doc.ID.Hex()),
		Name:        doc.Name,
		Description: doc.Description,
		CreatedDate: utcPtr(doc.CreatedDate),
		UpdatedDate: utcPtr(doc.UpdatedDate),
	}
}

func mapItem(doc todoItemDoc) model.TodoItem {
	result := model.TodoItem{
		ID:            model.ID(doc.ID.Hex()),
		ListID:        model.ID(doc.ListID.Hex()),
		Name:          doc.Name,
		Description:   doc.Description,
		DueDate:       utcPtr(doc.DueDate),
		CompletedDate: utcPtr(doc.CompletedDate),
		CreatedDate:   utcPtr(doc.CreatedDate),
		UpdatedDate:   utcPtr(doc.UpdatedDate),
	}
	if doc.State != nil {
		state := model.State(*doc.State)
		result.State = &state
	}
	return result
}

func stateString(state *model.State) *string {
	if state == nil {
		return nil
	}
	value := string(*state)
	return &value
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	result := storedTime(value)
	return &result
}

// storedTime is value at the millisecond precision BSON dates keep, so a
// written document reads back unchanged.
func storedTime(value time.Time) time.Time {
	return value.UTC().Truncate(time.Millisecond)
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	return timePtr(*value)
}
