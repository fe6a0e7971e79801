package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
)

// HandleDrain returns the next record in FIFO order, if one is
// immediately available. It never blocks: an empty buffer is reported
// as {"empty": true} rather than making the caller's HTTP request hang
// on backpressure from the reader.
func (h *Handler) HandleDrain(w http.ResponseWriter, _ *http.Request) {
	rec, ack, err := h.buf.Reader().TryRead()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read record")
		writeError(w, http.StatusInternalServerError, "failed to read record", "READ_ERROR")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, DrainResponse{Empty: true})
		return
	}

	token := h.storeAck(ack)
	writeJSON(w, http.StatusOK, DrainResponse{
		FirstRecordID: rec.FirstRecordID,
		EventCount:    rec.EventCount,
		Payload:       rec.Payload,
		AckToken:      token,
	})
}

// HandleAck resolves a record previously returned by /drain.
func (h *Handler) HandleAck(w http.ResponseWriter, r *http.Request) {
	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return
	}

	ack, ok := h.takeAck(req.AckToken)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or already-resolved ack token", "UNKNOWN_ACK_TOKEN")
		return
	}

	status := diskbuf.AckFailed
	if req.Success {
		status = diskbuf.AckSuccess
	}
	ack.Resolve(status)

	writeJSON(w, http.StatusOK, AckResponse{Accepted: true})
}
