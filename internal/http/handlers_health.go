package httpapi

import "net/http"

// HandleHealth returns API health status
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// HandleStats reports the buffer's current size and progress.
func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	s := h.buf.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalRecords:     s.TotalRecords,
		TotalBufferBytes: s.TotalBufferBytes,
		PendingAcks:      s.PendingAcks,
		UnackedSegments:  s.UnackedSegments,
		WriterCurrentID:  s.WriterCurrentID,
		ReaderCurrentID:  s.ReaderCurrentID,
	})
}
