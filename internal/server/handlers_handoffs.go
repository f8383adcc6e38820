package server

import (
	"net/http"
	"time"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
)

// handoffKeepalive keeps idle proxies from closing an operator's stream.
const handoffKeepalive = 15 * time.Second

// sseStream writes Server-Sent Events and flushes after each one.
type sseStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseStream) send(frame []byte) bool {
	if _, err := s.w.Write(frame); err != nil {
		return false
	}
	s.f.Flush()
	return true
}

// HandleHandoffStream handles GET /v1/handoffs/stream. Operators of one
// tenant receive every conversation escalated to a specialist, from any
// instance, as it happens.
func (h *Handlers) HandleHandoffStream(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"handoff stream requires NOTIFY_URL")
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	// Subscribe before the headers go out so nothing published in between
	// is lost.
	events := h.broker.Subscribe(ctxutil.TenantIDFromContext(r.Context()))
	defer h.broker.Unsubscribe(events)

	// The stream outlives the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	out := sseStream{w: w, f: f}
	tick := time.NewTicker(handoffKeepalive)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if !out.send([]byte(":keepalive\n\n")) {
				return
			}
		case frame, open := <-events:
			if !open || !out.send(frame) {
				return
			}
		}
	}
}
