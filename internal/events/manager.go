package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager handles event emission, journaling and logging
type Manager struct {
	bus     *Bus
	journal *Journal
	log     zerolog.Logger
}

// NewManager creates a new event manager. journal may be nil.
func NewManager(bus *Bus, journal *Journal, log zerolog.Logger) *Manager {
	return &Manager{
		bus:     bus,
		journal: journal,
		log:     log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Journal returns the event journal, or nil
func (m *Manager) Journal() *Journal {
	return m.journal
}

// Emit journals, logs and publishes a typed event.
// Call only after the transaction that produced the event has committed.
func (m *Manager) Emit(module string, data EventData) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	if m.journal != nil {
		if err := m.journal.Append(event); err != nil {
			m.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to journal event")
		}
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.bus.Publish(event)
	return event
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]string) {
	m.Emit(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
