// Package events provides typed domain events, a synchronous in-process bus
// and a persistent journal of everything emitted.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Strategy lifecycle
	StrategyActivated  EventType = "STRATEGY_ACTIVATED"
	StrategyRemoved    EventType = "STRATEGY_REMOVED"
	StrategySwitched   EventType = "STRATEGY_SWITCHED"
	StrategyLiquidated EventType = "STRATEGY_LIQUIDATED"

	// Copy trading
	CopyStarted EventType = "COPY_STARTED"
	CopyStopped EventType = "COPY_STOPPED"

	// Ledger
	TradeExecuted       EventType = "TRADE_EXECUTED"
	CashUpdated         EventType = "CASH_UPDATED"
	DividendsPaid       EventType = "DIVIDENDS_PAID"
	PortfolioRebalanced EventType = "PORTFOLIO_REBALANCED"
	SnapshotsTaken      EventType = "SNAPSHOTS_TAKEN"

	// System
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event is one emitted domain event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
