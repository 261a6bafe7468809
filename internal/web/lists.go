package web

import (
	"net/http"

	"github.com/Joseda-hg/todoapi/internal/model"
)

func (s *Server) listListsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := decodePage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lists, err := s.store.ListLists(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) createListHandler(w http.ResponseWriter, r *http.Request) {
	var input model.NewList
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	input.CreatedDate = s.now()

	list, err := s.store.CreateList(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, r, "/lists/"+list.ID.String(), list)
}

func (s *Server) getListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.GetList(r.Context(), pathID(r, "listId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) updateListHandler(w http.ResponseWriter, r *http.Request) {
	var patch model.ListPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	patch.UpdatedDate = s.now()

	list, err := s.store.UpdateList(r.Context(), pathID(r, "listId"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteListHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteList(r.Context(), pathID(r, "listId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
