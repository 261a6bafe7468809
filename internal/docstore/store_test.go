package docstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
	"github.com/Joseda-hg/todoapi/internal/store/storetest"
)

func TestStoreBehaviour(t *testing.T) {
	url := mongoURL(t)
	var n int
	storetest.Run(t, storetest.Harness{
		NewStore: func(t *testing.T) store.Store {
			n++
			return newTestStore(t, url, fmt.Sprintf("todoapi_test_%d_%d", os.Getpid(), n))
		},
		MissingID: model.ID(bson.NewObjectId().Hex()),
	})
}

func TestSetItemsStateRestoresOnWriteFailure(t *testing.T) {
	url := mongoURL(t)
	s := newTestStore(t, url, fmt.Sprintf("todoapi_test_%d_restore", os.Getpid()))
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	list, err := s.CreateList(ctx, model.NewList{Name: "Batch", CreatedDate: created})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	todo := model.StateTodo
	var ids []model.ID
	for _, name := range []string{"a", "b", "c"} {
		item, err := s.CreateItem(ctx, list.ID, model.NewItem{Name: name, State: &todo, CreatedDate: created})
		if err != nil {
			t.Fatalf("create item %s: %v", name, err)
		}
		ids = append(ids, item.ID)
	}

	writes := 0
	s.batchWrite = func(items *mgo.Collection, id bson.ObjectId, update bson.M) error {
		writes++
		if writes == 3 {
			return errors.New("write failed")
		}
		return items.UpdateId(id, update)
	}
	_, err = s.SetItemsState(ctx, list.ID, ids, model.StateDone, created.Add(time.Hour))
	if err == nil || errors.Is(err, errors.NotFound) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if writes != 3 {
		t.Fatalf("expected failure on the third write, got %d writes", writes)
	}

	for _, id := range ids {
		item, err := s.GetItem(ctx, list.ID, id)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if item.State == nil || *item.State != model.StateTodo {
			t.Fatalf("item %s: expected state restored to todo, got %v", id, item.State)
		}
		if item.UpdatedDate != nil {
			t.Fatalf("item %s: expected updatedDate restored to unset, got %v", id, item.UpdatedDate)
		}
	}
}

func TestUpdateDoc(t *testing.T) {
	update := updateDoc(bson.M{"name": "x"}, bson.M{})
	if _, ok := update["$unset"]; ok || len(update) != 1 {
		t.Fatalf("expected only $set, got %v", update)
	}
	update = updateDoc(bson.M{}, bson.M{"description": ""})
	if _, ok := update["$set"]; ok || len(update) != 1 {
		t.Fatalf("expected only $unset, got %v", update)
	}
}

func TestStoredTimeKeepsMilliseconds(t *testing.T) {
	value := time.Date(2024, 3, 1, 9, 0, 0, 123456789, time.FixedZone("CET", 3600))
	got := storedTime(value)
	want := time.Date(2024, 3, 1, 8, 0, 0, 123000000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if ptr := timePtr(time.Time{}); ptr != nil {
		t.Fatalf("expected zero time to map to nil, got %v", ptr)
	}
}

func TestMalformedIDsAreNotValid(t *testing.T) {
	// No server needed: ids are checked before any session is used.
	s := &Store{}
	ctx := context.Background()

	if _, err := s.GetList(ctx, "42"); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid for list id, got %v", err)
	}
	if err := s.DeleteItem(ctx, model.ID(bson.NewObjectId().Hex()), "nope"); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid for item id, got %v", err)
	}
	ids := []model.ID{model.ID(bson.NewObjectId().Hex()), "7"}
	if _, err := s.SetItemsState(ctx, model.ID(bson.NewObjectId().Hex()), ids, model.StateDone, time.Now()); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected not valid for batch id, got %v", err)
	}
}

func TestSetOrUnset(t *testing.T) {
	set, unset := bson.M{}, bson.M{}
	value := "x"
	setOrUnset(set, unset, "kept", false, &value)
	setOrUnset(set, unset, "name", true, &value)
	setOrUnset[string](set, unset, "description", true, nil)

	if _, ok := set["kept"]; ok {
		t.Fatalf("absent field should not be written: %v", set)
	}
	if set["name"] != "x" {
		t.Fatalf("expected name in $set, got %v", set)
	}
	if _, ok := unset["description"]; !ok {
		t.Fatalf("expected description in $unset, got %v", unset)
	}
}

func mongoURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TODO_TEST_MONGO_URL")
	if url == "" {
		t.Skip("TODO_TEST_MONGO_URL not set")
	}
	return url
}

func newTestStore(t *testing.T, url, database string) *Store {
	t.Helper()
	s, err := Dial(url, database, 10*time.Second)
	if err != nil {
		t.Fatalf("dial mongo: %v", err)
	}
	t.Cleanup(func() {
		session := s.session.Copy()
		_ = session.DB(database).DropDatabase()
		session.Close()
		_ = s.Close()
	})
	return s
}
