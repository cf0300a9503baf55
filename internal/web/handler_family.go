package web

import (
	"net/http"

	"github.com/vbonduro/famshop/internal/service"
	"github.com/vbonduro/famshop/internal/transform"
)

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	var in service.CreateItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.items.Create(r.Context(), actor, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transform.FromItem(*item), s.logger)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	filter, err := service.ParseItemFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.items.List(r.Context(), actor, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transform.FromItems(items), s.logger)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	var in service.UpdateItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.items.Update(r.Context(), actor, r.PathValue("itemId"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transform.FromItem(*item), s.logger)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if err := s.items.Delete(r.Context(), actor, r.PathValue("itemId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Item deleted successfully"}, s.logger)
}

func (s *Server) handleListNames(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	names, err := s.lists.Names(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names, s.logger)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	limit, err := service.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names, err := s.items.Suggest(r.Context(), actor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names, s.logger)
}
