package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

const sseHeartbeat = 15 * time.Second

// handleEvents relaie les événements du bus en Server-Sent Events.
// ?topics=list.updated,sync.error restreint le flux.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.bus == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}
	topics := splitTopics(r.URL.Query().Get("topics"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.subscribe(topics)
	defer cancel()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, ev.Payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

// topicSubscriber est implémenté par memorybus.Bus.
type topicSubscriber interface {
	SubscribeTopics(topics ...string) (<-chan ports.Event, func())
}

func (s *Server) subscribe(topics []string) (<-chan ports.Event, func()) {
	if ts, ok := s.bus.(topicSubscriber); ok && len(topics) > 0 {
		return ts.SubscribeTopics(topics...)
	}
	return s.bus.Subscribe()
}

func splitTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
