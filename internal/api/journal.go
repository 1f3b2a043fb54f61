package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/limitimer-bridge/internal/journal"
)

// handleListJournal returns journal entries, newest first.
//
// Query parameters:
//   - device: filter by device key
//   - kind: "action" or "status"
//   - limit: page size (default 50, max 500)
//   - offset: entries to skip
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		DeviceKey: q.Get("device"),
		Kind:      journal.Kind(q.Get("kind")),
	}
	if filter.Kind != "" && filter.Kind != journal.KindAction && filter.Kind != journal.KindStatus {
		writeBadRequest(w, "kind must be action or status")
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional non-negative query integer.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
