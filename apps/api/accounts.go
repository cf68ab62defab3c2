package main

import (
	"net/http"

	"github.com/mahaj/community-chat/pkg/users"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, r, err)
		return
	}

	session, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	s.log.Info("User registered", "user_id", session.ID)
	writeJSON(w, http.StatusCreated, session)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, r, err)
		return
	}

	session, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
