package services

import (
	"database/sql"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/shopspring/decimal"
)

// unwindLots sells every lot held under ps. Proceeds reach free cash and
// ps.RemainingCash through the ledger; ps is refreshed in place.
func (e *StrategyEngine) unwindLots(tx *sql.Tx, ps *strategies.PortfolioStrategy, note string) (decimal.Decimal, []*trading.Execution, error) {
	lots, err := e.holdings.WithTx(tx).ListLotsByAllocation(ps.ID)
	if err != nil {
		return decimal.Zero, nil, err
	}

	proceeds := decimal.Zero
	var execs []*trading.Execution
	for _, lot := range lots {
		if !lot.Quantity.IsPositive() {
			continue
		}
		exec, err := e.ledger.ExecuteSell(tx, trading.SellRequest{
			PortfolioID: ps.PortfolioID,
			AssetID:     lot.AssetID,
			Quantity:    lot.Quantity,
			Allocation:  ps,
			TradeType:   trading.TradeTypeSell,
			Note:        note,
		})
		if err != nil {
			return decimal.Zero, nil, err
		}
		if exec.Executed {
			proceeds = proceeds.Add(exec.Amount)
		}
		execs = append(execs, exec)
	}
	return proceeds, execs, nil
}

// release unwinds a self-directed allocation, returns its undeployed
// remaining_cash to free cash and deletes the row. Lots that could not be
// sold move to the unallocated lots first.
func (e *StrategyEngine) release(tx *sql.Tx, ps *strategies.PortfolioStrategy, note string) (*Release, error) {
	residual := ps.RemainingCash
	proceeds, execs, err := e.unwindLots(tx, ps, note)
	if err != nil {
		return nil, err
	}

	if residual.IsPositive() {
		if _, err := e.portfolios.WithTx(tx).AdjustCash(ps.PortfolioID, residual); err != nil {
			return nil, err
		}
	}
	if err := e.remove(tx, ps); err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("portfolio_id", ps.PortfolioID).
		Int64("allocation_id", ps.ID).
		Str("proceeds", proceeds.String()).
		Str("returned", residual.String()).
		Msg("Allocation released")
	return &Release{
		PortfolioStrategyID: ps.ID,
		StrategyID:          ps.StrategyID,
		Proceeds:            proceeds,
		Returned:            residual,
		Executions:          execs,
	}, nil
}

// releaseCopy unwinds a copied allocation into its relationship: proceeds and
// the undeployed remaining_cash are added to rel.RemainingCash, and the free
// cash credit made by each sell is reversed. The row is deleted.
func (e *StrategyEngine) releaseCopy(tx *sql.Tx, ps *strategies.PortfolioStrategy, rel *copytrading.CopyRelationship) (*Release, error) {
	residual := ps.RemainingCash
	proceeds, execs, err := e.unwindLots(tx, ps, "Leader strategy removed")
	if err != nil {
		return nil, err
	}

	if proceeds.IsPositive() {
		if _, err := e.portfolios.WithTx(tx).AdjustCash(ps.PortfolioID, proceeds.Neg()); err != nil {
			return nil, err
		}
	}
	if err := e.relationships.WithTx(tx).UpdateRemaining(rel, rel.RemainingCash.Add(proceeds).Add(residual)); err != nil {
		return nil, err
	}
	if err := e.remove(tx, ps); err != nil {
		return nil, err
	}

	return &Release{
		PortfolioStrategyID: ps.ID,
		StrategyID:          ps.StrategyID,
		Proceeds:            proceeds,
		Returned:            residual,
		Executions:          execs,
	}, nil
}

// remove detaches leftover lots and deletes the allocation row
func (e *StrategyEngine) remove(tx *sql.Tx, ps *strategies.PortfolioStrategy) error {
	if _, err := e.holdings.WithTx(tx).DetachLots(ps.PortfolioID, ps.ID); err != nil {
		return err
	}
	return e.allocations.WithTx(tx).Delete(ps.ID)
}

// sellUnallocated sells every lot the portfolio holds outside an allocation
func (e *StrategyEngine) sellUnallocated(tx *sql.Tx, portfolioID int64, note string) ([]*trading.Execution, error) {
	lots, err := e.holdings.WithTx(tx).ListLotsByPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}

	var execs []*trading.Execution
	for _, lot := range lots {
		if lot.PortfolioStrategyID != nil || !lot.Quantity.IsPositive() {
			continue
		}
		exec, err := e.ledger.ExecuteSell(tx, trading.SellRequest{
			PortfolioID: portfolioID,
			AssetID:     lot.AssetID,
			Quantity:    lot.Quantity,
			TradeType:   trading.TradeTypeSell,
			Note:        note,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sell unallocated lot %d: %w", lot.ID, err)
		}
		execs = append(execs, exec)
	}
	return execs, nil
}
