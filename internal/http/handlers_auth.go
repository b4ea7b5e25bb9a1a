package http

import (
	"errors"
	"net/http"

	"ikpa/internal/apperr"
	"ikpa/internal/auth"
	"ikpa/internal/core"
	"ikpa/internal/middleware/trace"
)

type authResponse struct {
	User  userView   `json:"user"`
	Token auth.Token `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = sanitizeInput(req.Name)
	req.Country = sanitizeInput(req.Country)

	u, tok, err := s.Auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trace.SetUserID(r.Context(), u.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: newUserView(u), Token: tok})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, apperr.Validation("email and password are required"))
		return
	}

	u, tok, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trace.SetUserID(r.Context(), u.ID)
	writeJSON(w, http.StatusOK, authResponse{User: newUserView(u), Token: tok})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.Store.GetUser(r.Context(), uid)
	if errors.Is(err, core.ErrNotFound) {
		// token outlived its account
		writeError(w, r, apperr.Unauthorized("account no longer exists"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}
