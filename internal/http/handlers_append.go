package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
)

// HandleAppend writes a single record to the buffer and returns the
// record id assigned to its first event.
func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid append request")
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return
	}

	eventCount := req.EventCount
	if eventCount == 0 {
		eventCount = 1
	}

	recordID, err := h.buf.Writer().Write(r.Context(), req.Payload, eventCount)
	if err != nil {
		if diskbuf.IsKind(err, diskbuf.KindBufferFull) {
			writeError(w, http.StatusServiceUnavailable, "buffer is full", "BUFFER_FULL")
			return
		}
		if diskbuf.IsKind(err, diskbuf.KindRecordTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large", "RECORD_TOO_LARGE")
			return
		}
		h.logger.Error().Err(err).Msg("failed to append record")
		writeError(w, http.StatusInternalServerError, "failed to append record", "APPEND_ERROR")
		return
	}

	h.logger.Debug().Uint64("record_id", recordID).Uint64("event_count", eventCount).Msg("record appended")
	writeJSON(w, http.StatusOK, AppendResponse{RecordID: recordID})
}
