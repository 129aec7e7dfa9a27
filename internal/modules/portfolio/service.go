package portfolio

import (
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service provides portfolio creation, valuation and snapshots.
//
// Valuation follows:
//
//	total_value       = cash_balance + Σ price × quantity
//	return_percentage = (current − initial) / initial × 100
//
// where initial is the first snapshot's total value, or the current cash
// balance before any snapshot exists.
type Service struct {
	portfolios  *PortfolioRepository
	holdings    *HoldingRepository
	snapshots   *SnapshotRepository
	initialCash decimal.Decimal
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	portfolios *PortfolioRepository,
	holdings *HoldingRepository,
	snapshots *SnapshotRepository,
	initialCash decimal.Decimal,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios:  portfolios,
		holdings:    holdings,
		snapshots:   snapshots,
		initialCash: initialCash,
		now:         time.Now,
		log:         log.With().Str("service", "portfolio").Logger(),
	}
}

// WithTx returns a service whose repositories run inside q
func (s *Service) WithTx(q database.Querier) *Service {
	clone := *s
	clone.portfolios = s.portfolios.WithTx(q)
	clone.holdings = s.holdings.WithTx(q)
	clone.snapshots = s.snapshots.WithTx(q)
	return &clone
}

// CreatePortfolio opens a portfolio for a user with the configured virtual balance
func (s *Service) CreatePortfolio(userID int64, name string) (*Portfolio, error) {
	p := &Portfolio{
		UserID:      userID,
		Name:        name,
		CashBalance: s.initialCash,
	}
	if err := s.portfolios.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// TotalValue returns cash_balance plus the market value of every holding
func (s *Service) TotalValue(portfolioID int64) (decimal.Decimal, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	holdings, err := s.holdings.ListHoldings(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	return valueOf(p, holdings), nil
}

// ReturnPercentage returns the portfolio's return relative to its first snapshot
func (s *Service) ReturnPercentage(portfolioID int64) (decimal.Decimal, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	holdings, err := s.holdings.ListHoldings(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.returnPercentage(p, valueOf(p, holdings))
}

func (s *Service) returnPercentage(p *Portfolio, current decimal.Decimal) (decimal.Decimal, error) {
	initial := p.CashBalance
	first, err := s.snapshots.First(p.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if first != nil {
		initial = first.TotalValue
	}

	if !initial.IsPositive() {
		return decimal.Zero, nil
	}
	return current.Sub(initial).Div(initial).Mul(domain.Hundred).RoundBank(domain.CentPlaces), nil
}

// Summary returns the portfolio with valued holdings and its return
func (s *Service) Summary(portfolioID int64) (*Summary, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdings.ListHoldings(portfolioID)
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []HoldingValue{}
	}

	total := valueOf(p, holdings)
	ret, err := s.returnPercentage(p, total)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Portfolio:        *p,
		Holdings:         holdings,
		HoldingsValue:    total.Sub(p.CashBalance),
		TotalValue:       total,
		ReturnPercentage: ret,
	}, nil
}

// TakeSnapshot records the portfolio's current value.
// A DAILY snapshot that already exists for today is not duplicated; nil is returned.
func (s *Service) TakeSnapshot(portfolioID int64, source SnapshotSource) (*Snapshot, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdings.ListHoldings(portfolioID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	snap := &Snapshot{
		PortfolioID:  portfolioID,
		TotalValue:   valueOf(p, holdings),
		CashBalance:  p.CashBalance,
		Source:       source,
		SnapshotDate: now.Format("2006-01-02"),
		CreatedAt:    now,
	}

	created, err := s.snapshots.Create(snap)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}

	s.log.Debug().
		Int64("portfolio_id", portfolioID).
		Str("source", string(source)).
		Str("total_value", snap.TotalValue.String()).
		Msg("Snapshot taken")
	return snap, nil
}

// TakeDailySnapshots snapshots every portfolio once per UTC day.
// Returns how many new snapshots were written.
func (s *Service) TakeDailySnapshots() (int, error) {
	portfolios, err := s.portfolios.List()
	if err != nil {
		return 0, err
	}

	taken := 0
	for _, p := range portfolios {
		snap, err := s.TakeSnapshot(p.ID, SnapshotDaily)
		if err != nil {
			s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to take daily snapshot")
			continue
		}
		if snap != nil {
			taken++
		}
	}

	s.log.Info().Int("portfolios", len(portfolios)).Int("taken", taken).Msg("Daily snapshots complete")
	return taken, nil
}

// Performance summarises the last window snapshots (all when window <= 0)
func (s *Service) Performance(portfolioID int64, window int) (*PerformanceReport, error) {
	ret, err := s.ReturnPercentage(portfolioID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.snapshots.List(portfolioID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	values := make([]float64, len(snaps))
	for i, snap := range snaps {
		values[i] = snap.TotalValue.InexactFloat64()
	}
	returns := formulas.CalculateReturns(values)

	report := &PerformanceReport{
		PortfolioID:      portfolioID,
		SnapshotCount:    len(snaps),
		ReturnPercentage: ret,
		MeanReturn:       formulas.Mean(returns),
		Volatility:       formulas.StdDev(returns),
	}
	if len(values) > 0 {
		report.MovingAverage = formulas.CalculateSMA(values, len(values))
	}
	return report, nil
}

func valueOf(p *Portfolio, holdings []HoldingValue) decimal.Decimal {
	total := p.CashBalance
	for _, h := range holdings {
		total = total.Add(h.MarketValue())
	}
	return domain.Settle(total)
}
