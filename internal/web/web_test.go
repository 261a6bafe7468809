package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"go.uber.org/mock/gomock"

	"github.com/Joseda-hg/todoapi/internal/db"
	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
	"github.com/Joseda-hg/todoapi/internal/store/mocks"
)

var startTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestCreateAndGetList(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/lists", `{"name":"Groceries","description":"weekly"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "http://example.com/lists/1" {
		t.Fatalf("unexpected location %q", got)
	}
	var created map[string]any
	decode(t, rec, &created)
	if created["id"] != float64(1) {
		t.Fatalf("expected numeric id 1, got %#v", created["id"])
	}
	if created["createdDate"] != "2024-05-06T07:08:09Z" || created["updatedDate"] != "2024-05-06T07:08:09Z" {
		t.Fatalf("unexpected dates %v / %v", created["createdDate"], created["updatedDate"])
	}

	rec = do(t, h, http.MethodGet, "/lists/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list model.TodoList
	decode(t, rec, &list)
	if list.Name != "Groceries" || list.Description == nil || *list.Description != "weekly" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCreateListValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, body := range []string{``, `{}`, `{"name":null}`, `{"name":5}`, `not json`} {
		rec := do(t, h, http.MethodPost, "/lists", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: expected 422, got %d", body, rec.Code)
		}
		var detail map[string]string
		decode(t, rec, &detail)
		if detail["detail"] == "" {
			t.Fatalf("body %q: expected detail message", body)
		}
	}
}

func TestCreateAcceptsEmptyName(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/lists", `{"name":""}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var list model.TodoList
	decode(t, rec, &list)
	if list.Name != "" {
		t.Fatalf("expected empty name, got %q", list.Name)
	}

	rec = do(t, h, http.MethodPut, "/lists/1", `{"name":""}`)
	mustStatus(t, rec, http.StatusOK)

	rec = do(t, h, http.MethodPost, "/lists/1/items", `{"name":""}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/lists/1/items", `{"state":"todo"}`)
	mustStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestLocationHonoursForwardedProto(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/lists", strings.NewReader(`{"name":"a"}`))
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Location"); got != "https://example.com/lists/1" {
		t.Fatalf("unexpected location %q", got)
	}
}

func TestListListsPagination(t *testing.T) {
	h, _ := newTestHandler(t)
	for i := 1; i <= 5; i++ {
		mustStatus(t, do(t, h, http.MethodPost, "/lists", fmt.Sprintf(`{"name":"list %d"}`, i)), http.StatusCreated)
	}

	rec := do(t, h, http.MethodGet, "/lists?skip=2&top=2", "")
	mustStatus(t, rec, http.StatusOK)
	var lists []model.TodoList
	decode(t, rec, &lists)
	if len(lists) != 2 || lists[0].Name != "list 3" || lists[1].Name != "list 4" {
		t.Fatalf("unexpected page %+v", lists)
	}

	for _, query := range []string{"top=-1", "skip=abc"} {
		mustStatus(t, do(t, h, http.MethodGet, "/lists?"+query, ""), http.StatusUnprocessableEntity)
	}
}

func TestEmptyListingIsArray(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/lists", "")
	mustStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}

func TestUpdateListNameOnly(t *testing.T) {
	h, clk := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"old","description":"keep me"}`), http.StatusCreated)

	clk.Advance(time.Hour)
	rec := do(t, h, http.MethodPut, "/lists/1", `{"name":"new"}`)
	mustStatus(t, rec, http.StatusOK)
	var list model.TodoList
	decode(t, rec, &list)
	if list.Name != "new" || list.Description == nil || *list.Description != "keep me" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.UpdatedDate == nil || !list.UpdatedDate.Equal(startTime.Add(time.Hour)) {
		t.Fatalf("expected updatedDate refreshed, got %v", list.UpdatedDate)
	}

	mustStatus(t, do(t, h, http.MethodPut, "/lists/1", `{"name":null}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, h, http.MethodPut, "/lists/99", `{"name":"x"}`), http.StatusNotFound)
}

func TestDeleteList(t *testing.T) {
	h, _ := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"gone"}`), http.StatusCreated)

	rec := do(t, h, http.MethodDelete, "/lists/1", "")
	mustStatus(t, rec, http.StatusNoContent)
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	mustStatus(t, do(t, h, http.MethodGet, "/lists/1", ""), http.StatusNotFound)
	mustStatus(t, do(t, h, http.MethodDelete, "/lists/1", ""), http.StatusNotFound)
}

func TestMalformedIDIsUnprocessable(t *testing.T) {
	h, _ := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodGet, "/lists/abc", ""), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, h, http.MethodGet, "/lists/1/items/abc", ""), http.StatusUnprocessableEntity)
}

func TestItemLifecycle(t *testing.T) {
	h, clk := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"chores"}`), http.StatusCreated)

	rec := do(t, h, http.MethodPost, "/lists/1/items", `{"name":"dishes","state":"todo","dueDate":"2024-05-07T00:00:00Z"}`)
	mustStatus(t, rec, http.StatusCreated)
	if got := rec.Header().Get("Location"); got != "http://example.com/lists/1/items/1" {
		t.Fatalf("unexpected location %q", got)
	}
	var item model.TodoItem
	decode(t, rec, &item)
	if item.ListID != "1" || item.State == nil || *item.State != model.StateTodo || item.UpdatedDate != nil {
		t.Fatalf("unexpected item %+v", item)
	}

	clk.Advance(time.Minute)
	rec = do(t, h, http.MethodPut, "/lists/1/items/1", `{"state":"done","dueDate":null}`)
	mustStatus(t, rec, http.StatusOK)
	var updated model.TodoItem
	decode(t, rec, &updated)
	if updated.Name != "dishes" || updated.State == nil || *updated.State != model.StateDone || updated.DueDate != nil {
		t.Fatalf("unexpected updated item %+v", updated)
	}

	mustStatus(t, do(t, h, http.MethodPut, "/lists/1/items/1", `{"state":"later"}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, h, http.MethodGet, "/lists/1/items/1", ""), http.StatusOK)
	mustStatus(t, do(t, h, http.MethodDelete, "/lists/1/items/1", ""), http.StatusNoContent)
	mustStatus(t, do(t, h, http.MethodGet, "/lists/1/items/1", ""), http.StatusNotFound)
	mustStatus(t, do(t, h, http.MethodDelete, "/lists/1/items/1", ""), http.StatusNotFound)
}

func TestCreateItemOnMissingList(t *testing.T) {
	h, _ := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists/7/items", `{"name":"orphan"}`), http.StatusNotFound)
}

func TestItemsByState(t *testing.T) {
	h, _ := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"l"}`), http.StatusCreated)
	for _, body := range []string{
		`{"name":"a","state":"done"}`,
		`{"name":"b","state":"todo"}`,
		`{"name":"c","state":"done"}`,
		`{"name":"d"}`,
	} {
		mustStatus(t, do(t, h, http.MethodPost, "/lists/1/items", body), http.StatusCreated)
	}

	rec := do(t, h, http.MethodGet, "/lists/1/items/state/DONE", "")
	mustStatus(t, rec, http.StatusOK)
	var items []model.TodoItem
	decode(t, rec, &items)
	if len(items) != 2 || items[0].Name != "a" || items[1].Name != "c" {
		t.Fatalf("unexpected items %+v", items)
	}

	rec = do(t, h, http.MethodGet, "/lists/1/items?top=3", "")
	var page []model.TodoItem
	decode(t, rec, &page)
	if len(page) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page))
	}

	mustStatus(t, do(t, h, http.MethodGet, "/lists/1/items/state/someday", ""), http.StatusUnprocessableEntity)
}

func TestSetItemsState(t *testing.T) {
	h, clk := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"l"}`), http.StatusCreated)
	mustStatus(t, do(t, h, http.MethodPost, "/lists/1/items", `{"name":"a"}`), http.StatusCreated)
	mustStatus(t, do(t, h, http.MethodPost, "/lists/1/items", `{"name":"b"}`), http.StatusCreated)

	clk.Advance(time.Minute)
	rec := do(t, h, http.MethodPut, "/lists/1/items/state/inprogress", `[1, 2]`)
	mustStatus(t, rec, http.StatusOK)
	var items []model.TodoItem
	decode(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.State == nil || *item.State != model.StateInProgress {
			t.Fatalf("unexpected state on %+v", item)
		}
		if item.UpdatedDate == nil || !item.UpdatedDate.Equal(startTime.Add(time.Minute)) {
			t.Fatalf("unexpected updatedDate on %+v", item)
		}
	}
}

func TestSetItemsStateMissingItemChangesNothing(t *testing.T) {
	h, _ := newTestHandler(t)
	mustStatus(t, do(t, h, http.MethodPost, "/lists", `{"name":"l"}`), http.StatusCreated)
	mustStatus(t, do(t, h, http.MethodPost, "/lists/1/items", `{"name":"a","state":"todo"}`), http.StatusCreated)

	mustStatus(t, do(t, h, http.MethodPut, "/lists/1/items/state/done", `[1, 42]`), http.StatusNotFound)

	rec := do(t, h, http.MethodGet, "/lists/1/items/1", "")
	var item model.TodoItem
	decode(t, rec, &item)
	if item.State == nil || *item.State != model.StateTodo || item.UpdatedDate != nil {
		t.Fatalf("item changed by failed batch: %+v", item)
	}
}

func TestSetItemsStateEmptyBodyDoesNotTouchStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	h := newMockHandler(t, s)

	for _, body := range []string{``, `[]`, "  \n"} {
		rec := do(t, h, http.MethodPut, "/lists/1/items/state/done", body)
		mustStatus(t, rec, http.StatusBadRequest)
	}
}

func TestSetItemsStateInvalidState(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newMockHandler(t, mocks.NewMockStore(ctrl))
	mustStatus(t, do(t, h, http.MethodPut, "/lists/1/items/state/nope", `[1]`), http.StatusUnprocessableEntity)
}

func TestOversizedBodyIsTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newMockHandler(t, mocks.NewMockStore(ctrl))

	name := strings.Repeat("a", maxBodyBytes)
	rec := do(t, h, http.MethodPost, "/lists", `{"name":"`+name+`"}`)
	mustStatus(t, rec, http.StatusRequestEntityTooLarge)
	var detail map[string]string
	decode(t, rec, &detail)
	if !strings.Contains(detail["detail"], "request body over") {
		t.Fatalf("unexpected detail %q", detail["detail"])
	}

	ids := "[" + strings.Repeat("1,", maxBodyBytes/2) + "1]"
	mustStatus(t, do(t, h, http.MethodPut, "/lists/1/items/state/done", ids), http.StatusRequestEntityTooLarge)
}

func TestDeleteStoreFailureIsInternalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().DeleteList(gomock.Any(), model.ID("1")).Return(errors.New("connection reset by peer"))
	s.EXPECT().DeleteItem(gomock.Any(), model.ID("1"), model.ID("2")).Return(errors.Annotate(errors.New("timeout"), "delete todo item"))
	h := newMockHandler(t, s)

	for _, path := range []string{"/lists/1", "/lists/1/items/2"} {
		rec := do(t, h, http.MethodDelete, path, "")
		mustStatus(t, rec, http.StatusInternalServerError)
		var detail map[string]string
		decode(t, rec, &detail)
		if detail["detail"] != "Internal Server Error" {
			t.Fatalf("expected masked detail, got %q", detail["detail"])
		}
	}
}

func TestHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	gomock.InOrder(
		s.EXPECT().Ping(gomock.Any()).Return(nil),
		s.EXPECT().Ping(gomock.Any()).Return(errors.New("down")),
	)
	h := newMockHandler(t, s)

	mustStatus(t, do(t, h, http.MethodGet, "/healthz", ""), http.StatusOK)
	mustStatus(t, do(t, h, http.MethodGet, "/healthz", ""), http.StatusServiceUnavailable)
}

func TestMetricsRecordRouteTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().GetList(gomock.Any(), model.ID("3")).Return(model.TodoList{}, store.ListNotFound("3"))
	h := newMockHandler(t, s)

	mustStatus(t, do(t, h, http.MethodGet, "/lists/3", ""), http.StatusNotFound)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	mustStatus(t, rec, http.StatusOK)
	want := `todoapi_http_requests_total{code="404",method="GET",route="/lists/{listId}"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newMockHandler(t, mocks.NewMockStore(ctrl))

	mustStatus(t, do(t, h, http.MethodGet, "/nowhere", ""), http.StatusNotFound)
	mustStatus(t, do(t, h, http.MethodPatch, "/lists", ""), http.StatusMethodNotAllowed)
}

func TestCORS(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, err := NewServer(mocks.NewMockStore(ctrl), WithOrigins([]string{"https://portal.azure.com"}))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/lists", nil)
	req.Header.Set("Origin", "https://portal.azure.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	mustStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://portal.azure.com" {
		t.Fatalf("expected allowed origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Fatalf("expected requested headers echoed, got %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/lists", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no CORS headers for unknown origin")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	h := newMockHandler(t, s)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", rec.Header().Get("X-Request-Id"))
	}

	rec = do(t, h, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

func newTestHandler(t *testing.T) (http.Handler, *testclock.Clock) {
	t.Helper()
	conn, dialect, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	clk := testclock.NewClock(startTime)
	s, err := NewServer(db.NewStore(conn, dialect), WithClock(clk))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s.Handler(), clk
}

func newMockHandler(t *testing.T, st store.Store) http.Handler {
	t.Helper()
	s, err := NewServer(st, WithClock(testclock.NewClock(startTime)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}
