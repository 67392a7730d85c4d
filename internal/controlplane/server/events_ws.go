package server

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vello/vello/pkg/logger"
)

// jobEvent is one progress update fanned out to websocket subscribers.
type jobEvent struct {
	JobID     int64  `json:"job_id"`
	Stage     string `json:"stage"` // started | record | finished
	RecordIdx int    `json:"record_idx,omitempty"`
	Total     int    `json:"total,omitempty"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// eventHub fans job progress out to websocket subscribers keyed by job id.
// Slow subscribers drop events rather than stall the job.
type eventHub struct {
	mu   sync.Mutex
	subs map[int64]map[chan jobEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int64]map[chan jobEvent]struct{})}
}

func (h *eventHub) subscribe(jobID int64) chan jobEvent {
	ch := make(chan jobEvent, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan jobEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	return ch
}

func (h *eventHub) unsubscribe(jobID int64, ch chan jobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[jobID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
}

func (h *eventHub) publish(ev jobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// control plane is unauthenticated by design, same-origin checks add nothing
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(urlParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(w, 400, "invalid job id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := s.events.subscribe(jobID)
	defer s.events.unsubscribe(jobID, ch)

	// reader goroutine notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Stage == "finished" {
				return
			}
		}
	}
}
