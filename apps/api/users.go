package main

import (
	"net/http"

	"github.com/mahaj/community-chat/pkg/auth"
	"github.com/mahaj/community-chat/pkg/users"
)

type followingResponse struct {
	IsFollowing bool `json:"isFollowing"`
}

// caller returns the id of the authenticated user. Handlers behind protect
// always have one.
func caller(r *http.Request) string {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return ""
	}
	return claims.UserID
}

func (s *server) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.accounts.Profile(r.Context(), caller(r))
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req users.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, r, err)
		return
	}

	profile, err := s.accounts.UpdateProfile(r.Context(), caller(r), req)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *server) follow(w http.ResponseWriter, r *http.Request) {
	result, err := s.accounts.ToggleFollow(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) isFollowing(w http.ResponseWriter, r *http.Request) {
	following, err := s.accounts.IsFollowing(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followingResponse{IsFollowing: following})
}
