package http

import (
	"net/http"

	"budget/internal/log"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpRegister, err)
		return
	}
	user, err := s.accounts.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		s.writeError(w, r, log.OpRegister, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserJSON(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpLogin, err)
		return
	}
	sess, err := s.accounts.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		s.writeError(w, r, log.OpLogin, err)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, sessionJSON{
		User:      toUserJSON(sess.User),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// handleLogout clears the cookie. Tokens are stateless and stay valid
// until they expire.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserJSON(user))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := s.accounts.DeleteAccount(r.Context(), user.ID); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
