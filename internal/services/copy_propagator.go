package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Default copy slice sizing
var (
	DefaultCopyBuyPercent = decimal.RequireFromString("0.2")
	DefaultCopyMinCash    = decimal.NewFromInt(200)
)

// CopySlice is one leader strategy considered in a copy pass
type CopySlice struct {
	StrategyID          int64           `json:"strategy_id"`
	PortfolioStrategyID int64           `json:"portfolio_strategy_id"`
	Cash                decimal.Decimal `json:"cash"`
	Created             bool            `json:"created"`
	Run                 *StrategyRun    `json:"run,omitempty"`
}

// CopyPass is the outcome of copying leader strategies to a follower
type CopyPass struct {
	RelationshipID int64           `json:"relationship_id"`
	Slices         []CopySlice     `json:"slices"`
	RemainingCash  decimal.Decimal `json:"remaining_cash"`
}

// Copied counts the slices that created a new copy
func (p *CopyPass) Copied() int {
	n := 0
	for _, s := range p.Slices {
		if s.Created {
			n++
		}
	}
	return n
}

func (p *CopyPass) executions() []*trading.Execution {
	var execs []*trading.Execution
	for _, s := range p.Slices {
		execs = append(execs, s.Run.executions()...)
	}
	return execs
}

// FollowResult is the outcome of Follow
type FollowResult struct {
	Relationship *copytrading.CopyRelationship `json:"relationship"`
	Pass         *CopyPass                     `json:"pass"`
}

// StopCopyResult is the outcome of StopCopyingAndUnwind
type StopCopyResult struct {
	FollowerID int64           `json:"follower_id"`
	LeaderID   int64           `json:"leader_id"`
	Released   []Release       `json:"released"`
	Proceeds   decimal.Decimal `json:"proceeds"`
	Residual   decimal.Decimal `json:"residual"`
}

// CopyPropagator mirrors leader strategy activations to followers. Only
// self-directed allocations propagate and propagation only creates copies,
// so a copy never triggers another pass.
type CopyPropagator struct {
	db            *sql.DB
	engine        *StrategyEngine
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	events        *events.Manager
	buyPercent    decimal.Decimal
	minCash       decimal.Decimal
	retries       int
	log           zerolog.Logger
}

// NewCopyPropagator creates the propagator. Non-positive sizing falls back to
// the defaults.
func NewCopyPropagator(
	db *sql.DB,
	engine *StrategyEngine,
	eventManager *events.Manager,
	buyPercent decimal.Decimal,
	minCash decimal.Decimal,
	retries int,
	log zerolog.Logger,
) *CopyPropagator {
	if !buyPercent.IsPositive() {
		buyPercent = DefaultCopyBuyPercent
	}
	if minCash.IsNegative() {
		minCash = DefaultCopyMinCash
	}
	return &CopyPropagator{
		db:            db,
		engine:        engine,
		allocations:   engine.allocations,
		relationships: engine.relationships,
		events:        eventManager,
		buyPercent:    buyPercent,
		minCash:       minCash,
		retries:       retries,
		log:           log.With().Str("service", "copy_propagator").Logger(),
	}
}

// Subscribe wires the leader strategy signals to the propagator
func (p *CopyPropagator) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.StrategyActivated, func(e events.Event) error {
		data, ok := e.Data.(*events.StrategyActivatedData)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Data)
		}
		_, err := p.OnLeaderStrategyActivated(data.PortfolioStrategyID)
		return err
	})
	bus.Subscribe(events.StrategyRemoved, func(e events.Event) error {
		data, ok := e.Data.(*events.StrategyRemovedData)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Data)
		}
		_, err := p.OnLeaderStrategyRemoved(data.PortfolioID, data.StrategyID)
		return err
	})
}

// Follow debits amount from the follower's free cash into a new copy
// relationship and seeds it with the leader's ACTIVE strategies.
func (p *CopyPropagator) Follow(followerID, leaderID int64, amount decimal.Decimal) (*FollowResult, error) {
	amount = domain.Settle(amount)
	if followerID == leaderID {
		return nil, domain.ErrSelfFollow
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var result *FollowResult
	err := domain.RetryOnConflict(p.retries, p.log, "follow", func() error {
		return database.WithTransaction(p.db, func(tx *sql.Tx) error {
			portfolios := p.engine.portfolios.WithTx(tx)
			if _, err := portfolios.GetByID(leaderID); err != nil {
				return err
			}
			follower, err := portfolios.GetByID(followerID)
			if err != nil {
				return err
			}

			own, err := p.allocations.WithTx(tx).ListActiveSelfDirected(followerID)
			if err != nil {
				return err
			}
			if len(own) > 0 {
				return fmt.Errorf("portfolio %d: %w", followerID, domain.ErrSelfDirected)
			}

			existing, err := p.relationships.WithTx(tx).Find(followerID, leaderID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("portfolio %d follows %d: %w", followerID, leaderID, domain.ErrAlreadyFollowing)
			}

			if amount.GreaterThan(follower.CashBalance) {
				return fmt.Errorf("copying with %s of %s free: %w", amount, follower.CashBalance, domain.ErrInsufficientFunds)
			}
			if _, err := portfolios.AdjustCash(followerID, amount.Neg()); err != nil {
				return err
			}

			rel := &copytrading.CopyRelationship{FollowerID: followerID, LeaderID: leaderID, AllocatedCash: amount}
			if err := p.relationships.WithTx(tx).Create(rel); err != nil {
				return err
			}

			pass, err := p.CopyLeaderStrategiesToFollower(tx, rel, nil)
			if err != nil {
				return err
			}
			result = &FollowResult{Relationship: rel, Pass: pass}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.engine.ledger.EmitTrades(result.Pass.executions())
	if p.events != nil {
		p.events.Emit("copytrading", &events.CopyStartedData{
			RelationshipID: result.Relationship.ID,
			FollowerID:     followerID,
			LeaderID:       leaderID,
			AllocatedCash:  amount.String(),
			Copied:         result.Pass.Copied(),
		})
	}
	return result, nil
}

// CopyLeaderStrategiesToFollower walks the leader's ACTIVE self-directed
// allocations, optionally only strategyID, carving each a slice of
// floor(remaining × buyPercent) from the relationship. The pass stops at the
// first slice below minCash. A strategy already copied under the relationship
// is not topped up, but its slice is still deducted. rel's remaining_cash is
// persisted after every slice.
func (p *CopyPropagator) CopyLeaderStrategiesToFollower(tx *sql.Tx, rel *copytrading.CopyRelationship, strategyID *int64) (*CopyPass, error) {
	leaderAllocations, err := p.allocations.WithTx(tx).ListActiveSelfDirected(rel.LeaderID)
	if err != nil {
		return nil, err
	}

	pass := &CopyPass{RelationshipID: rel.ID}
	remaining := rel.RemainingCash
	for _, leaderPS := range leaderAllocations {
		if strategyID != nil && leaderPS.StrategyID != *strategyID {
			continue
		}
		if remaining.LessThan(p.minCash) {
			break
		}
		slice := domain.FloorCents(remaining.Mul(p.buyPercent))
		if slice.LessThan(p.minCash) {
			break
		}

		copied, created, err := p.allocations.WithTx(tx).GetOrCreateCopy(rel.FollowerID, leaderPS.StrategyID, rel.ID, slice)
		if err != nil {
			return nil, err
		}

		entry := CopySlice{StrategyID: leaderPS.StrategyID, PortfolioStrategyID: copied.ID, Cash: slice, Created: created}
		if created {
			if entry.Run, err = p.engine.ExecuteCopyStrategy(tx, copied); err != nil {
				return nil, err
			}
		} else {
			p.log.Debug().
				Int64("relationship_id", rel.ID).
				Int64("strategy_id", leaderPS.StrategyID).
				Msg("Strategy already copied; not topping up")
		}

		remaining = remaining.Sub(slice)
		if err := p.relationships.WithTx(tx).UpdateRemaining(rel, remaining); err != nil {
			return nil, err
		}
		pass.Slices = append(pass.Slices, entry)
	}

	pass.RemainingCash = remaining
	p.log.Info().
		Int64("relationship_id", rel.ID).
		Int("slices", len(pass.Slices)).
		Int("copied", pass.Copied()).
		Str("remaining", remaining.String()).
		Msg("Leader strategies copied")
	return pass, nil
}

// OnLeaderStrategyActivated copies a leader's new self-directed allocation to
// every follower that can fund a slice. Each follower runs in its own
// transaction; one follower's failure is logged and does not block the rest.
func (p *CopyPropagator) OnLeaderStrategyActivated(portfolioStrategyID int64) ([]*CopyPass, error) {
	ps, err := p.allocations.GetByID(portfolioStrategyID)
	if err != nil {
		return nil, err
	}
	if ps.IsCopy() || !ps.IsActive() {
		return nil, nil
	}

	rels, err := p.relationships.ListActiveByLeader(ps.PortfolioID)
	if err != nil {
		return nil, err
	}

	var passes []*CopyPass
	var errs []error
	for _, rel := range rels {
		if rel.RemainingCash.Mul(p.buyPercent).LessThan(p.minCash) {
			p.log.Info().
				Int64("relationship_id", rel.ID).
				Str("remaining", rel.RemainingCash.String()).
				Msg("Follower below copy threshold")
			continue
		}

		strategyID := ps.StrategyID
		var pass *CopyPass
		err := domain.RetryOnConflict(p.retries, p.log, "copy_new_strategy", func() error {
			return database.WithTransaction(p.db, func(tx *sql.Tx) error {
				current, err := p.relationships.WithTx(tx).GetByID(rel.ID)
				if err != nil {
					return err
				}
				pass, err = p.CopyLeaderStrategiesToFollower(tx, current, &strategyID)
				return err
			})
		})
		if err != nil {
			p.log.Error().Err(err).Int64("relationship_id", rel.ID).Msg("Failed to copy strategy to follower")
			errs = append(errs, err)
			continue
		}
		p.engine.ledger.EmitTrades(pass.executions())
		passes = append(passes, pass)
	}
	return passes, errors.Join(errs...)
}

// OnLeaderStrategyRemoved unwinds each follower's copy of a removed leader
// strategy back into the follower's relationship.
func (p *CopyPropagator) OnLeaderStrategyRemoved(leaderID, strategyID int64) ([]Release, error) {
	rels, err := p.relationships.ListActiveByLeader(leaderID)
	if err != nil {
		return nil, err
	}

	var released []Release
	var errs []error
	for _, rel := range rels {
		var release *Release
		err := domain.RetryOnConflict(p.retries, p.log, "unwind_copy", func() error {
			return database.WithTransaction(p.db, func(tx *sql.Tx) error {
				release = nil
				copied, err := p.allocations.WithTx(tx).FindCopy(rel.ID, strategyID)
				if err != nil || copied == nil || !copied.IsActive() {
					return err
				}
				current, err := p.relationships.WithTx(tx).GetByID(rel.ID)
				if err != nil {
					return err
				}
				release, err = p.engine.releaseCopy(tx, copied, current)
				return err
			})
		})
		if err != nil {
			p.log.Error().Err(err).Int64("relationship_id", rel.ID).Msg("Failed to unwind copied strategy")
			errs = append(errs, err)
			continue
		}
		if release == nil {
			continue
		}
		p.engine.ledger.EmitTrades(release.Executions)
		released = append(released, *release)
	}
	return released, errors.Join(errs...)
}

// StopCopyingAndUnwind tears a relationship down in one transaction: ACTIVE
// copies are sold into the follower's free cash, their undeployed cash and
// the relationship residual are paid to free cash, and the copies and the
// relationship are deleted.
func (p *CopyPropagator) StopCopyingAndUnwind(followerID, leaderID int64) (*StopCopyResult, error) {
	var result *StopCopyResult
	err := domain.RetryOnConflict(p.retries, p.log, "stop_copying", func() error {
		return database.WithTransaction(p.db, func(tx *sql.Tx) error {
			var err error
			result, err = p.stopCopying(tx, followerID, leaderID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	for _, release := range result.Released {
		p.engine.ledger.EmitTrades(release.Executions)
	}
	if p.events != nil {
		p.events.Emit("copytrading", &events.CopyStoppedData{
			FollowerID: followerID,
			LeaderID:   leaderID,
			Returned:   result.Proceeds.Add(result.Residual).String(),
		})
	}
	return result, nil
}

func (p *CopyPropagator) stopCopying(tx *sql.Tx, followerID, leaderID int64) (*StopCopyResult, error) {
	relationships := p.relationships.WithTx(tx)
	allocations := p.allocations.WithTx(tx)

	rel, err := relationships.Find(followerID, leaderID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("copy relationship %d -> %d: %w", followerID, leaderID, domain.ErrNotFound)
	}

	copies, err := allocations.ListByCopyRelationship(rel.ID)
	if err != nil {
		return nil, err
	}

	result := &StopCopyResult{FollowerID: followerID, LeaderID: leaderID, Proceeds: decimal.Zero}
	residual := rel.RemainingCash
	for i := range copies {
		ps := &copies[i]
		release := Release{PortfolioStrategyID: ps.ID, StrategyID: ps.StrategyID, Proceeds: decimal.Zero, Returned: decimal.Zero}
		if ps.IsActive() {
			// The copy's undeployed remainder is zeroed, not paid out; only
			// the relationship residual reaches free cash.
			undeployed := ps.RemainingCash
			proceeds, execs, err := p.engine.unwindLots(tx, ps, "Copy trading stopped")
			if err != nil {
				return nil, err
			}
			release.Proceeds = proceeds
			release.Executions = execs
			if err := allocations.Stop(ps); err != nil {
				return nil, err
			}
			if undeployed.IsPositive() {
				p.log.Info().
					Int64("portfolio_strategy_id", ps.ID).
					Str("undeployed", undeployed.String()).
					Msg("Copy allocation stopped with undeployed cash")
			}
			result.Proceeds = result.Proceeds.Add(proceeds)
		}
		if err := p.engine.remove(tx, ps); err != nil {
			return nil, err
		}
		result.Released = append(result.Released, release)
	}

	if residual.IsPositive() {
		if _, err := p.engine.portfolios.WithTx(tx).AdjustCash(followerID, residual); err != nil {
			return nil, err
		}
	}
	if err := relationships.Delete(rel.ID); err != nil {
		return nil, err
	}
	result.Residual = residual

	p.log.Info().
		Int64("follower_id", followerID).
		Int64("leader_id", leaderID).
		Int("copies", len(copies)).
		Str("proceeds", result.Proceeds.String()).
		Str("residual", residual.String()).
		Msg("Copy trading stopped")
	return result, nil
}
