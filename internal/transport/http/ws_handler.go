package http

import (
	"context"
	"log"
	"net/http"

	"converseiq-service/internal/app"
	"converseiq-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// EventSubscriber streams the events committed for one session.
type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// EventFeedHandler pushes a session's audit events to websocket clients as they happen.
type EventFeedHandler struct {
	service  *app.ConversationService
	events   EventSubscriber
	upgrader websocket.Upgrader
}

func NewEventFeedHandler(service *app.ConversationService, events EventSubscriber) *EventFeedHandler {
	return &EventFeedHandler{
		service: service,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *EventFeedHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionId}/events/ws", h.ServeWS)
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS sends the current progress first, then one "event" message per
// committed audit event until the client disconnects.
func (h *EventFeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respondError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}
	sessionID := chi.URLParam(r, "sessionId")

	progress, err := h.service.GetNextQuestion(r.Context(), sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Subscribe before upgrading so nothing committed after the handshake is missed.
	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	updates, cancel, err := h.events.Subscribe(ctx, sessionID)
	if err != nil {
		log.Printf("event feed subscribe failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(outboundMessage[app.SessionProgress]{Type: "progress", Payload: progress}); err != nil {
		return
	}

	// The feed is one-way; reading only detects when the client goes away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[domain.Event]{Type: "event", Payload: event}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		}
	}
}
