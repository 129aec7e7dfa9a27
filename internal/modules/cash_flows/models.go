// Package cash_flows records deposits and withdrawals against a portfolio's
// free cash balance.
package cash_flows

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlowType is the direction of a cash flow
type FlowType string

const (
	FlowDeposit    FlowType = "DEPOSIT"
	FlowWithdrawal FlowType = "WITHDRAWAL"
)

// Status of a cash flow. Withdrawals stay PENDING until the external
// approval workflow completes them.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// CashFlow is one deposit or withdrawal. BalanceAfter is the free balance
// immediately after the flow was applied.
type CashFlow struct {
	ID           int64           `json:"id"`
	PortfolioID  int64           `json:"portfolio_id"`
	FlowType     FlowType        `json:"flow_type"`
	Amount       decimal.Decimal `json:"amount"`
	Status       Status          `json:"status"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
