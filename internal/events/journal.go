package events

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// JournalEntry is a persisted event. Payload holds the decoded event data
// keyed by its JSON field names.
type JournalEntry struct {
	EventID   string                 `json:"event_id"`
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// Journal appends emitted events to the event_journal table as msgpack blobs
type Journal struct {
	db  database.Querier
	log zerolog.Logger
}

// NewJournal creates a new event journal
func NewJournal(db database.Querier, log zerolog.Logger) *Journal {
	return &Journal{
		db:  db,
		log: log.With().Str("repo", "event_journal").Logger(),
	}
}

// Append persists one event
func (j *Journal) Append(e Event) error {
	payload, err := encodePayload(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}

	_, err = j.db.Exec(`
		INSERT INTO event_journal (event_id, event_type, module, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), e.Module, payload, e.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns the newest entries first, optionally filtered by type
func (j *Journal) Recent(limit int, eventType EventType) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT event_id, event_type, module, payload, created_at FROM event_journal`
	args := []interface{}{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			entry     JournalEntry
			eventType string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&entry.EventID, &eventType, &entry.Module, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Type = EventType(eventType)
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entry.Payload, err = decodePayload(payload)
		if err != nil {
			j.log.Warn().Err(err).Str("event_id", entry.EventID).Msg("Undecodable journal payload")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

func encodePayload(data EventData) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(b []byte) (map[string]interface{}, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
