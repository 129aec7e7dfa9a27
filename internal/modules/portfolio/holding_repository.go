package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const lotColumns = `id, portfolio_id, portfolio_strategy_id, asset_id, quantity, average_price, created_at, updated_at`

// HoldingRepository handles position lots (strategy_holdings) and the
// aggregate holdings derived from them
type HoldingRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db database.Querier, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *HoldingRepository) WithTx(q database.Querier) *HoldingRepository {
	return &HoldingRepository{db: q, log: r.log}
}

// GetLot returns the lot for (portfolio, allocation, asset), or nil if none exists.
// A nil allocation addresses the unallocated lot.
func (r *HoldingRepository) GetLot(portfolioID int64, portfolioStrategyID *int64, assetID int64) (*StrategyHolding, error) {
	row := r.db.QueryRow(`
		SELECT `+lotColumns+` FROM strategy_holdings
		WHERE portfolio_id = ? AND IFNULL(portfolio_strategy_id, 0) = ? AND asset_id = ?
	`, portfolioID, allocationKey(portfolioStrategyID), assetID)

	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

// SaveLot inserts a new lot (ID == 0) or updates an existing one
func (r *HoldingRepository) SaveLot(lot *StrategyHolding) error {
	now := time.Now().Unix()

	if lot.ID == 0 {
		result, err := r.db.Exec(`
			INSERT INTO strategy_holdings (portfolio_id, portfolio_strategy_id, asset_id, quantity, average_price, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, lot.PortfolioID, nullInt64(lot.PortfolioStrategyID), lot.AssetID, lot.Quantity.String(), lot.AveragePrice.String(), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert lot: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read lot id: %w", err)
		}
		lot.ID = id
		lot.CreatedAt = time.Unix(now, 0).UTC()
		lot.UpdatedAt = lot.CreatedAt
		return nil
	}

	_, err := r.db.Exec(`
		UPDATE strategy_holdings SET quantity = ?, average_price = ?, updated_at = ? WHERE id = ?
	`, lot.Quantity.String(), lot.AveragePrice.String(), now, lot.ID)
	if err != nil {
		return fmt.Errorf("failed to update lot %d: %w", lot.ID, err)
	}
	lot.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

// DeleteLot removes an emptied lot
func (r *HoldingRepository) DeleteLot(id int64) error {
	if _, err := r.db.Exec("DELETE FROM strategy_holdings WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete lot %d: %w", id, err)
	}
	return nil
}

// ListLotsByAllocation returns every lot held under one strategy allocation
func (r *HoldingRepository) ListLotsByAllocation(portfolioStrategyID int64) ([]StrategyHolding, error) {
	return r.queryLots(`SELECT `+lotColumns+` FROM strategy_holdings WHERE portfolio_strategy_id = ? ORDER BY id`, portfolioStrategyID)
}

// ListLotsByPortfolio returns every lot of a portfolio
func (r *HoldingRepository) ListLotsByPortfolio(portfolioID int64) ([]StrategyHolding, error) {
	return r.queryLots(`SELECT `+lotColumns+` FROM strategy_holdings WHERE portfolio_id = ? ORDER BY id`, portfolioID)
}

// SyncHolding recomputes the aggregate holding for (portfolio, asset) as the
// sum of its lots. The holding row is deleted when the total is not positive.
func (r *HoldingRepository) SyncHolding(portfolioID, assetID int64) (decimal.Decimal, error) {
	rows, err := r.db.Query(`SELECT quantity FROM strategy_holdings WHERE portfolio_id = ? AND asset_id = ?`, portfolioID, assetID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read lots: %w", err)
	}

	total := decimal.Zero
	for rows.Next() {
		var qty decimal.Decimal
		if err := rows.Scan(&qty); err != nil {
			rows.Close()
			return decimal.Zero, fmt.Errorf("failed to scan lot quantity: %w", err)
		}
		total = total.Add(qty)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return decimal.Zero, fmt.Errorf("error iterating lots: %w", err)
	}
	rows.Close()

	if !total.IsPositive() {
		if _, err := r.db.Exec(`DELETE FROM holdings WHERE portfolio_id = ? AND asset_id = ?`, portfolioID, assetID); err != nil {
			return decimal.Zero, fmt.Errorf("failed to delete holding: %w", err)
		}
		return decimal.Zero, nil
	}

	_, err = r.db.Exec(`
		INSERT INTO holdings (portfolio_id, asset_id, quantity, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, asset_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at
	`, portfolioID, assetID, total.String(), time.Now().Unix())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to upsert holding: %w", err)
	}
	return total, nil
}

// GetHolding returns the aggregate holding, or nil if none exists
func (r *HoldingRepository) GetHolding(portfolioID, assetID int64) (*Holding, error) {
	var (
		h         Holding
		updatedAt int64
	)
	err := r.db.QueryRow(`
		SELECT id, portfolio_id, asset_id, quantity, updated_at FROM holdings WHERE portfolio_id = ? AND asset_id = ?
	`, portfolioID, assetID).Scan(&h.ID, &h.PortfolioID, &h.AssetID, &h.Quantity, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &h, nil
}

// ListHoldings returns a portfolio's holdings joined with current prices
func (r *HoldingRepository) ListHoldings(portfolioID int64) ([]HoldingValue, error) {
	return r.queryHoldingValues(`
		SELECT h.id, h.portfolio_id, h.asset_id, h.quantity, h.updated_at, a.symbol, a.asset_type, a.price
		FROM holdings h JOIN assets a ON a.id = h.asset_id
		WHERE h.portfolio_id = ?
		ORDER BY a.symbol
	`, portfolioID)
}

// ListHoldingsByAssetType returns holdings of one asset type across all portfolios
func (r *HoldingRepository) ListHoldingsByAssetType(assetType assets.AssetType) ([]HoldingValue, error) {
	return r.queryHoldingValues(`
		SELECT h.id, h.portfolio_id, h.asset_id, h.quantity, h.updated_at, a.symbol, a.asset_type, a.price
		FROM holdings h JOIN assets a ON a.id = h.asset_id
		WHERE a.asset_type = ?
		ORDER BY h.portfolio_id, a.symbol
	`, string(assetType))
}

// DetachLots moves any lots still held under an allocation into the
// portfolio's unallocated lots, merging cost basis where one already exists.
// Used before an allocation row is deleted while some of its lots could not be sold.
func (r *HoldingRepository) DetachLots(portfolioID, portfolioStrategyID int64) (int, error) {
	lots, err := r.ListLotsByAllocation(portfolioStrategyID)
	if err != nil {
		return 0, err
	}

	for i := range lots {
		lot := lots[i]
		unallocated, err := r.GetLot(portfolioID, nil, lot.AssetID)
		if err != nil {
			return 0, err
		}

		if unallocated == nil {
			if _, err := r.db.Exec(`UPDATE strategy_holdings SET portfolio_strategy_id = NULL, updated_at = ? WHERE id = ?`,
				time.Now().Unix(), lot.ID); err != nil {
				return 0, fmt.Errorf("failed to detach lot %d: %w", lot.ID, err)
			}
			continue
		}

		mergedQty := unallocated.Quantity.Add(lot.Quantity)
		if mergedQty.IsPositive() {
			cost := unallocated.Quantity.Mul(unallocated.AveragePrice).Add(lot.Quantity.Mul(lot.AveragePrice))
			unallocated.AveragePrice = cost.Div(mergedQty).Round(domain.PricePlaces)
		}
		unallocated.Quantity = mergedQty
		if err := r.SaveLot(unallocated); err != nil {
			return 0, err
		}
		if err := r.DeleteLot(lot.ID); err != nil {
			return 0, err
		}
	}

	if len(lots) > 0 {
		r.log.Warn().
			Int64("portfolio_id", portfolioID).
			Int64("portfolio_strategy_id", portfolioStrategyID).
			Int("lots", len(lots)).
			Msg("Unsold lots moved to unallocated holdings")
	}
	return len(lots), nil
}

func (r *HoldingRepository) queryLots(query string, args ...interface{}) ([]StrategyHolding, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var result []StrategyHolding
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		result = append(result, *lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}
	return result, nil
}

func (r *HoldingRepository) queryHoldingValues(query string, args ...interface{}) ([]HoldingValue, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var result []HoldingValue
	for rows.Next() {
		var (
			hv        HoldingValue
			assetType string
			updatedAt int64
		)
		if err := rows.Scan(&hv.ID, &hv.PortfolioID, &hv.AssetID, &hv.Quantity, &updatedAt, &hv.Symbol, &assetType, &hv.Price); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		hv.AssetType = assets.AssetType(assetType)
		hv.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		result = append(result, hv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return result, nil
}

func scanLot(row rowScanner) (*StrategyHolding, error) {
	var (
		lot       StrategyHolding
		psID      sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&lot.ID, &lot.PortfolioID, &psID, &lot.AssetID, &lot.Quantity, &lot.AveragePrice, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if psID.Valid {
		id := psID.Int64
		lot.PortfolioStrategyID = &id
	}
	lot.CreatedAt = time.Unix(createdAt, 0).UTC()
	lot.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &lot, nil
}

func allocationKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func nullInt64(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
