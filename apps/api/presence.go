package main

import (
	"fmt"
	"net/http"
)

func (s *server) presentUsers(w http.ResponseWriter, r *http.Request) {
	community := r.PathValue("id")
	if !validCommunity(community) {
		writeError(w, s.log, r, errInvalidCommunity)
		return
	}

	ids, err := s.presence.Members(r.Context(), community)
	if err != nil {
		writeError(w, s.log, r, fmt.Errorf("fetch presence for community %s: %w", community, err))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}
