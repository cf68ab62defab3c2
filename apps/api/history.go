package main

import (
	"net/http"
	"unicode/utf8"

	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
)

const maxCommunityLength = 64

var errInvalidCommunity = apperrors.InvalidArg("community is required and at most 64 characters")

func validCommunity(community string) bool {
	return community != "" && utf8.RuneCountInString(community) <= maxCommunityLength
}

// history answers with the same sequence a join delivers as load-messages.
func (s *server) history(w http.ResponseWriter, r *http.Request) {
	community := r.URL.Query().Get("community")
	if !validCommunity(community) {
		writeError(w, s.log, r, errInvalidCommunity)
		return
	}

	messages, err := s.messages.History(r.Context(), community)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	if messages == nil {
		messages = []model.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}
