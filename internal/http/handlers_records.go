package http

import (
	"net/http"

	"budget/internal/log"
)

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var in recordInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	draft, err := in.draft()
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	rec, err := s.ledger.CreateRecord(r.Context(), user.ID, draft)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordJSON(rec))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	q, err := parseRecordQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	page, err := s.ledger.ListRecords(r.Context(), user.ID, q)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordPageJSON(page))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	rec, err := s.ledger.GetRecord(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordJSON(rec))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var in recordInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := in.patch()
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	rec, err := s.ledger.UpdateRecord(r.Context(), user.ID, r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordJSON(rec))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	if err := s.ledger.DeleteRecord(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	q, err := parseSuggestQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpSuggest, err)
		return
	}
	out, err := s.ledger.Suggest(r.Context(), user.ID, q)
	if err != nil {
		s.writeError(w, r, log.OpSuggest, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionsJSON(out))
}
