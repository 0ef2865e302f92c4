package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // DocumentID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager. A nil logger falls back
// to slog.Default at the time of each message.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for documentID's events. The returned
// function unregisters and closes it.
func (sm *StreamManager) Subscribe(documentID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[documentID]; !ok {
		sm.subscribers[documentID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[documentID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[documentID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, documentID)
			}
		}
	}
}

// Broadcast sends msg to every subscriber of documentID. Slow clients
// miss messages instead of blocking the sender.
func (sm *StreamManager) Broadcast(documentID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[documentID] {
		select {
		case ch <- msg:
		default:
			sm.log().Warn("SSE: Client buffer full, dropping message", "document_id", documentID)
		}
	}
}

func (sm *StreamManager) publish(documentID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		sm.log().Error("SSE: Failed to encode event", "document_id", documentID, "err", err)
		return
	}
	sm.Broadcast(documentID, string(data))
}

func (sm *StreamManager) log() *slog.Logger {
	if sm.logger == nil {
		return slog.Default()
	}
	return sm.logger
}

// Hooks returns lifecycle hooks that broadcast each event to the
// subscribers of its document.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAppend: func(_ context.Context, e *domain.NodeEvent) { sm.publish(e.DocumentID, e) },
		OnJump:   func(_ context.Context, e *domain.NodeEvent) { sm.publish(e.DocumentID, e) },
		OnUndo:   func(_ context.Context, e *domain.UndoEvent) { sm.publish(e.DocumentID, e) },
		OnPrune:  func(_ context.Context, e *domain.PruneEvent) { sm.publish(e.DocumentID, e) },
		OnSave: func(_ context.Context, e *domain.SaveEvent) {
			payload := struct {
				*domain.SaveEvent
				Error string `json:"error,omitempty"`
			}{SaveEvent: e}
			if e.Err != nil {
				payload.Error = e.Err.Error()
			}
			sm.publish(e.DocumentID, payload)
		},
	}
}

// SubscribeEvents handles GET /documents/{id}/events (SSE).
// The optional "types" query parameter filters by event type
// (comma separated, e.g. "append,undo").
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	documentID := chi.URLParam(r, "id")
	var filter map[string]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = make(map[string]bool)
		for _, typ := range strings.Split(raw, ",") {
			filter[strings.TrimSpace(typ)] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(documentID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil {
				var head struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal([]byte(msg), &head); err == nil && !filter[head.Type] {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
