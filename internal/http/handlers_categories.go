package http

import (
	"net/http"

	"budget/internal/log"
)

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var in categoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	cat, err := s.ledger.CreateCategory(r.Context(), user.ID, in.draft())
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryJSON(cat))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	q, err := parseCategoryQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	page, err := s.ledger.ListCategories(r.Context(), user.ID, q)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryPageJSON(page))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	cat, err := s.ledger.GetCategory(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(cat))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var in categoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	cat, err := s.ledger.UpdateCategory(r.Context(), user.ID, r.PathValue("id"), in.patch())
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(cat))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	if err := s.ledger.DeleteCategory(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
