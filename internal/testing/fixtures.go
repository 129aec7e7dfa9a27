package testing

import (
	"database/sql"
	"testing"
	"time"
)

// AllocationFixture is one target weight of a seeded strategy
type AllocationFixture struct {
	AssetID    int64
	Percentage string
}

// SeedAsset inserts an asset and returns its ID
func SeedAsset(t *testing.T, db *sql.DB, symbol, assetType, price string) int64 {
	t.Helper()
	now := time.Now().Unix()
	return insert(t, db, `INSERT INTO assets (symbol, name, asset_type, price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, symbol, assetType, price, now, now)
}

// SeedREIT inserts a dividend-paying REIT and returns its ID
func SeedREIT(t *testing.T, db *sql.DB, symbol, price, annualYield, frequency string) int64 {
	t.Helper()
	now := time.Now().Unix()
	return insert(t, db, `INSERT INTO assets (symbol, name, asset_type, price, annual_yield, dividend_frequency, created_at, updated_at)
		VALUES (?, ?, 'REIT', ?, ?, ?, ?, ?)`, symbol, symbol, price, annualYield, frequency, now, now)
}

// SeedPortfolio inserts a portfolio with the given free cash and returns its ID
func SeedPortfolio(t *testing.T, db *sql.DB, userID int64, cash string) int64 {
	t.Helper()
	now := time.Now().Unix()
	return insert(t, db, `INSERT INTO portfolios (user_id, name, cash_balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, "portfolio", cash, now, now)
}

// SeedStrategy inserts an active strategy with its target weights and returns its ID
func SeedStrategy(t *testing.T, db *sql.DB, name string, allocations ...AllocationFixture) int64 {
	t.Helper()
	now := time.Now().Unix()
	id := insert(t, db, `INSERT INTO strategies (name, risk_level, target_return_min, target_return_max, created_at) VALUES (?, 'MEDIUM', '5', '10', ?)`,
		name, now)
	for i, a := range allocations {
		insert(t, db, `INSERT INTO strategy_allocations (strategy_id, asset_id, percentage, position) VALUES (?, ?, ?, ?)`,
			id, a.AssetID, a.Percentage, i)
	}
	return id
}

// SeedPortfolioStrategy inserts an ACTIVE allocation with allocated = remaining = cash
func SeedPortfolioStrategy(t *testing.T, db *sql.DB, portfolioID, strategyID int64, copyRelationshipID *int64, cash string) int64 {
	t.Helper()
	now := time.Now().Unix()
	var rel interface{}
	if copyRelationshipID != nil {
		rel = *copyRelationshipID
	}
	return insert(t, db, `INSERT INTO portfolio_strategies (portfolio_id, strategy_id, copy_relationship_id, allocated_cash, remaining_cash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'ACTIVE', ?, ?)`, portfolioID, strategyID, rel, cash, cash, now, now)
}

// SeedCopyRelationship inserts an active relationship with allocated = remaining = cash
func SeedCopyRelationship(t *testing.T, db *sql.DB, followerID, leaderID int64, cash string) int64 {
	t.Helper()
	now := time.Now().Unix()
	return insert(t, db, `INSERT INTO copy_relationships (follower_id, leader_id, allocated_cash, remaining_cash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, followerID, leaderID, cash, cash, now, now)
}

// CountRows returns the number of rows in table matching where (may be empty)
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func insert(t *testing.T, db *sql.DB, query string, args ...interface{}) int64 {
	t.Helper()
	result, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("Failed to seed fixture: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read fixture id: %v", err)
	}
	return id
}
