// Package copytrading stores follower-to-leader copy relationships and their
// independent cash pools.
package copytrading

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyRelationship is a follower portfolio's subscription to a leader.
// RemainingCash is undeployed copy capital and caps every strategy copied
// under the relationship.
type CopyRelationship struct {
	ID            int64           `json:"id"`
	FollowerID    int64           `json:"follower_id"`
	LeaderID      int64           `json:"leader_id"`
	AllocatedCash decimal.Decimal `json:"allocated_cash"`
	RemainingCash decimal.Decimal `json:"remaining_cash"`
	IsActive      bool            `json:"is_active"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LeaderStats is one row of the leader leaderboard
type LeaderStats struct {
	LeaderID      int64 `json:"leader_id"`
	FollowerCount int   `json:"follower_count"`
}
