package web

import (
	"fmt"
	"net/http"

	"github.com/vbonduro/famshop/internal/access"
	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/service"
	"github.com/vbonduro/famshop/internal/transform"
)

// allowed writes denied as a 403 when it is non-nil.
func (s *Server) allowed(w http.ResponseWriter, r *http.Request, denied *apperr.Error) bool {
	if denied == nil {
		return true
	}
	s.writeWrappedError(w, r, denied)
	return false
}

// manageItems checks the items capability, naming the attempted verb in the
// denial.
func (s *Server) manageItems(actor service.Actor, verb string) *apperr.Error {
	if s.caps.Allows(actor.User.Role, access.ManageItems) {
		return nil
	}
	return apperr.Forbidden(fmt.Sprintf("User not authorized to %s shopping items", verb))
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	lists, err := s.lists.List(r.Context(), actor)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromLists(lists))
}

func (s *Server) handlePostList(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if !s.allowed(w, r, s.caps.Require(actor.User.Role, access.CreateLists)) {
		return
	}
	var in service.CreateListInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	list, err := s.lists.Create(r.Context(), actor, in)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusCreated, transform.FromList(*list))
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	list, err := s.lists.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromList(*list))
}

func (s *Server) handlePutList(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	var in service.UpdateListInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	list, err := s.lists.Update(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromList(*list))
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if !s.allowed(w, r, s.caps.Require(actor.User.Role, access.DeleteLists)) {
		return
	}
	if err := s.lists.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, message{Message: "Shopping list deleted successfully"})
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	filter, err := service.ParseItemFilter(r.URL.Query())
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	items, err := s.items.List(r.Context(), actor, filter)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromItems(items))
}

func (s *Server) handlePostItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if !s.allowed(w, r, s.manageItems(actor, "create")) {
		return
	}
	var in service.CreateItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	item, err := s.items.Create(r.Context(), actor, in)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusCreated, transform.FromItem(*item))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	item, err := s.items.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromItem(*item))
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if !s.allowed(w, r, s.manageItems(actor, "update")) {
		return
	}
	var in service.UpdateItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	item, err := s.items.Update(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, transform.FromItem(*item))
}

func (s *Server) handleDeleteItemByID(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	if !s.allowed(w, r, s.manageItems(actor, "delete")) {
		return
	}
	if err := s.items.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		s.writeWrappedError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, message{Message: "Shopping item deleted successfully"})
}
