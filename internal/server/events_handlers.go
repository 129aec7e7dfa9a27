package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	streamBuffer      = 100
	heartbeatInterval = 30 * time.Second
	wsWriteTimeout    = 5 * time.Second
)

// EventsHandlers serves the event journal and live event streams
type EventsHandlers struct {
	bus     *events.Bus
	journal *events.Journal
	log     zerolog.Logger
}

// NewEventsHandlers creates event handlers
func NewEventsHandlers(bus *events.Bus, journal *events.Journal, log zerolog.Logger) *EventsHandlers {
	return &EventsHandlers{
		bus:     bus,
		journal: journal,
		log:     log.With().Str("handler", "events").Logger(),
	}
}

// HandleRecent returns journaled events, newest first
// GET /api/events?limit=&type=
func (h *EventsHandlers) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			utils.WriteError(w, h.log, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	entries, err := h.journal.Recent(limit, events.EventType(r.URL.Query().Get("type")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read event journal")
		utils.WriteError(w, h.log, http.StatusInternalServerError, "failed to read events")
		return
	}
	if entries == nil {
		entries = []events.JournalEntry{}
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"events": entries,
		"count":  len(entries),
	})
}

// HandleStream streams live events as Server-Sent Events
// GET /api/events/stream?types=A,B
func (h *EventsHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	allowed := parseTypes(r.URL.Query().Get("types"))
	stream, unsubscribe := h.bus.Stream(streamBuffer)
	defer unsubscribe()

	h.log.Info().Str("types_filter", r.URL.Query().Get("types")).Msg("Client connected to event stream")

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event, ok := <-stream:
			if !ok {
				return
			}
			if !allowed.match(event.Type) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", h.encode(event))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// HandleWebSocket streams live events over a WebSocket
// GET /api/events/ws?types=A,B
func (h *EventsHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Same origin policy as CORS: any origin
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	allowed := parseTypes(r.URL.Query().Get("types"))
	stream, unsubscribe := h.bus.Stream(streamBuffer)
	defer unsubscribe()

	// Clients only receive; CloseRead handles control frames and reports disconnects
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("types_filter", r.URL.Query().Get("types")).Msg("WebSocket client connected")

	if err := h.write(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event, ok := <-stream:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if !allowed.match(event.Type) {
				continue
			}
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

func (h *EventsHandlers) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *EventsHandlers) encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}

// typeFilter is a set of event types; nil allows everything
type typeFilter map[events.EventType]bool

func parseTypes(raw string) typeFilter {
	if raw == "" {
		return nil
	}
	filter := make(typeFilter)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[events.EventType(t)] = true
		}
	}
	return filter
}

func (f typeFilter) match(t events.EventType) bool {
	return f == nil || f[t]
}
