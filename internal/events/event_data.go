package events

// EventData is the interface for all typed event payloads.
// Monetary amounts are carried as decimal strings.
type EventData interface {
	EventType() EventType
}

// StrategyActivatedData contains data for StrategyActivated events
type StrategyActivatedData struct {
	PortfolioID         int64  `json:"portfolio_id"`
	PortfolioStrategyID int64  `json:"portfolio_strategy_id"`
	StrategyID          int64  `json:"strategy_id"`
	AllocatedCash       string `json:"allocated_cash"`
}

// EventType returns the event type for StrategyActivatedData
func (d *StrategyActivatedData) EventType() EventType {
	return StrategyActivated
}

// StrategyRemovedData contains data for StrategyRemoved events.
// Emitted when a self-directed allocation is fully liquidated.
type StrategyRemovedData struct {
	PortfolioID         int64  `json:"portfolio_id"`
	PortfolioStrategyID int64  `json:"portfolio_strategy_id"`
	StrategyID          int64  `json:"strategy_id"`
	Proceeds            string `json:"proceeds"`
}

// EventType returns the event type for StrategyRemovedData
func (d *StrategyRemovedData) EventType() EventType {
	return StrategyRemoved
}

// StrategySwitchedData contains data for StrategySwitched events
type StrategySwitchedData struct {
	PortfolioID         int64  `json:"portfolio_id"`
	PortfolioStrategyID int64  `json:"portfolio_strategy_id"`
	StrategyID          int64  `json:"strategy_id"`
	TotalValue          string `json:"total_value"`
}

// EventType returns the event type for StrategySwitchedData
func (d *StrategySwitchedData) EventType() EventType {
	return StrategySwitched
}

// StrategyLiquidatedData contains data for StrategyLiquidated events
type StrategyLiquidatedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	Allocations int    `json:"allocations"`
	CashBalance string `json:"cash_balance"`
}

// EventType returns the event type for StrategyLiquidatedData
func (d *StrategyLiquidatedData) EventType() EventType {
	return StrategyLiquidated
}

// CopyStartedData contains data for CopyStarted events
type CopyStartedData struct {
	RelationshipID int64  `json:"relationship_id"`
	FollowerID     int64  `json:"follower_id"`
	LeaderID       int64  `json:"leader_id"`
	AllocatedCash  string `json:"allocated_cash"`
	Copied         int    `json:"copied"`
}

// EventType returns the event type for CopyStartedData
func (d *CopyStartedData) EventType() EventType {
	return CopyStarted
}

// CopyStoppedData contains data for CopyStopped events
type CopyStoppedData struct {
	FollowerID int64  `json:"follower_id"`
	LeaderID   int64  `json:"leader_id"`
	Returned   string `json:"returned"`
}

// EventType returns the event type for CopyStoppedData
func (d *CopyStoppedData) EventType() EventType {
	return CopyStopped
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	Reference   string `json:"reference"`
	TradeType   string `json:"trade_type"`
	Symbol      string `json:"symbol,omitempty"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// CashUpdatedData contains data for CashUpdated events
type CashUpdatedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	Reason      string `json:"reason"`
	Amount      string `json:"amount"`
	CashBalance string `json:"cash_balance"`
}

// EventType returns the event type for CashUpdatedData
func (d *CashUpdatedData) EventType() EventType {
	return CashUpdated
}

// DividendsPaidData contains data for DividendsPaid events
type DividendsPaidData struct {
	Payments int    `json:"payments"`
	Total    string `json:"total"`
}

// EventType returns the event type for DividendsPaidData
func (d *DividendsPaidData) EventType() EventType {
	return DividendsPaid
}

// PortfolioRebalancedData contains data for PortfolioRebalanced events
type PortfolioRebalancedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	Status      string `json:"status"`
	Trades      int    `json:"trades"`
	TotalValue  string `json:"total_value"`
}

// EventType returns the event type for PortfolioRebalancedData
func (d *PortfolioRebalancedData) EventType() EventType {
	return PortfolioRebalanced
}

// SnapshotsTakenData contains data for SnapshotsTaken events
type SnapshotsTakenData struct {
	Count int    `json:"count"`
	Date  string `json:"date"`
}

// EventType returns the event type for SnapshotsTakenData
func (d *SnapshotsTakenData) EventType() EventType {
	return SnapshotsTaken
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	Uploaded  bool   `json:"uploaded"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string            `json:"error"`
	Context map[string]string `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
