package web

import (
	"net/http"

	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
)

func (s *Server) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	s.listItems(w, r, model.ItemFilter{ListID: pathID(r, "listId")})
}

func (s *Server) listItemsByStateHandler(w http.ResponseWriter, r *http.Request) {
	state, err := pathState(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.listItems(w, r, model.ItemFilter{ListID: pathID(r, "listId"), State: &state})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request, filter model.ItemFilter) {
	page, err := decodePage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.store.ListItems(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createItemHandler(w http.ResponseWriter, r *http.Request) {
	listID := pathID(r, "listId")
	var input model.NewItem
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetList(r.Context(), listID); err != nil {
		writeError(w, r, err)
		return
	}
	input.CreatedDate = s.now()

	item, err := s.store.CreateItem(r.Context(), listID, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, r, "/lists/"+listID.String()+"/items/"+item.ID.String(), item)
}

func (s *Server) getItemHandler(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.Context(), pathID(r, "listId"), pathID(r, "itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateItemHandler(w http.ResponseWriter, r *http.Request) {
	var patch model.ItemPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	patch.UpdatedDate = s.now()

	item, err := s.store.UpdateItem(r.Context(), pathID(r, "listId"), pathID(r, "itemId"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteItemHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(r.Context(), pathID(r, "listId"), pathID(r, "itemId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setItemsStateHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeBatch(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	state, err := pathState(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := s.store.SetItemsState(r.Context(), pathID(r, "listId"), ids, state, s.now())
	if err != nil {
		writeError(w, r, errors.Trace(err))
		return
	}
	writeJSON(w, http.StatusOK, items)
}
