package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	"github.com/rs/zerolog"
)

// Handler contains HTTP handlers for the buffer API
type Handler struct {
	buf    *diskbuf.Buffer
	logger zerolog.Logger

	nextToken uint64 // atomic
	acksMu    sync.Mutex
	acks      map[string]*diskbuf.Ack
}

// NewHandler creates a new HTTP handler over an open buffer.
func NewHandler(buf *diskbuf.Buffer, logger zerolog.Logger) *Handler {
	return &Handler{
		buf:    buf,
		logger: logger,
		acks:   make(map[string]*diskbuf.Ack),
	}
}

// storeAck registers an outstanding Ack and returns the token a client
// must present to /ack to resolve it.
func (h *Handler) storeAck(ack *diskbuf.Ack) string {
	token := strconv.FormatUint(atomic.AddUint64(&h.nextToken, 1), 36)
	h.acksMu.Lock()
	h.acks[token] = ack
	h.acksMu.Unlock()
	return token
}

// takeAck removes and returns the Ack for token, if still outstanding.
func (h *Handler) takeAck(token string) (*diskbuf.Ack, bool) {
	h.acksMu.Lock()
	defer h.acksMu.Unlock()
	ack, ok := h.acks[token]
	if ok {
		delete(h.acks, token)
	}
	return ack, ok
}

// Helper functions used across all handlers

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response with the given status code
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
