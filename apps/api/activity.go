package main

import "net/http"

func (s *server) communityActivity(w http.ResponseWriter, r *http.Request) {
	community := r.PathValue("id")
	if !validCommunity(community) {
		writeError(w, s.log, r, errInvalidCommunity)
		return
	}

	summary, err := s.activity.Get(r.Context(), community)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
