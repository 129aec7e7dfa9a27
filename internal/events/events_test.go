package events

import (
	"encoding/json"
	"errors"
	"testing"

	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_HandlersRunInOrderAndSurviveErrors(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls []string
	bus.Subscribe(StrategyActivated, func(Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe(StrategyActivated, func(Event) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(StrategyRemoved, func(Event) error {
		calls = append(calls, "other")
		return nil
	})

	bus.Publish(Event{Type: StrategyActivated})
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBus_ReentrantPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var removed int
	bus.Subscribe(StrategyActivated, func(Event) error {
		bus.Publish(Event{Type: StrategyRemoved})
		return nil
	})
	bus.Subscribe(StrategyRemoved, func(Event) error {
		removed++
		return nil
	})

	bus.Publish(Event{Type: StrategyActivated})
	assert.Equal(t, 1, removed)
}

func TestBus_StreamAndUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsub := bus.Stream(1)
	bus.Publish(Event{ID: "a", Type: TradeExecuted})
	bus.Publish(Event{ID: "b", Type: TradeExecuted}) // dropped, buffer full

	got := <-ch
	assert.Equal(t, "a", got.ID)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	bus.Publish(Event{ID: "c", Type: TradeExecuted})
}

func TestManager_EmitJournalsAndPublishes(t *testing.T) {
	db := testingpkg.NewTestConn(t)
	log := zerolog.Nop()
	bus := NewBus(log)
	journal := NewJournal(db, log)
	manager := NewManager(bus, journal, log)

	var seen []Event
	bus.Subscribe(StrategyActivated, func(e Event) error {
		seen = append(seen, e)
		return nil
	})

	emitted := manager.Emit("strategies", &StrategyActivatedData{
		PortfolioID:         3,
		PortfolioStrategyID: 9,
		StrategyID:          4,
		AllocatedCash:       "10000.00",
	})
	manager.EmitError("scheduler", errors.New("job failed"), map[string]string{"job": "dividends"})

	require.Len(t, seen, 1)
	assert.Equal(t, emitted.ID, seen[0].ID)
	assert.NotEmpty(t, emitted.ID)
	assert.Equal(t, "strategies", emitted.Module)

	entries, err := journal.Recent(10, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ErrorOccurred, entries[0].Type, "newest first")

	entries, err = journal.Recent(10, StrategyActivated)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, emitted.ID, entry.EventID)
	assert.Equal(t, "10000.00", entry.Payload["allocated_cash"])
	assert.EqualValues(t, 3, entry.Payload["portfolio_id"])
	assert.EqualValues(t, 4, entry.Payload["strategy_id"])
}

func TestEvent_JSONCarriesTypedData(t *testing.T) {
	e := Event{
		ID:     "id-1",
		Type:   CopyStopped,
		Module: "copytrading",
		Data:   &CopyStoppedData{FollowerID: 1, LeaderID: 2, Returned: "150.00"},
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"COPY_STOPPED"`)
	assert.Contains(t, string(raw), `"returned":"150.00"`)
	assert.Equal(t, CopyStopped, e.Data.EventType())
}
