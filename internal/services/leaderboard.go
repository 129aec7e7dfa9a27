package services

import (
	"sort"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StrategyRanking is one row of the strategy leaderboard
type StrategyRanking struct {
	StrategyID    int64                `json:"strategy_id"`
	Name          string               `json:"name"`
	RiskLevel     strategies.RiskLevel `json:"risk_level"`
	Portfolios    int                  `json:"portfolios"`
	AverageReturn decimal.Decimal      `json:"average_return"`
}

// LeaderRanking is one row of the leader leaderboard
type LeaderRanking struct {
	PortfolioID      int64           `json:"portfolio_id"`
	Followers        int             `json:"followers"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
}

// LeaderboardService ranks strategies and copy-trading leaders by return
type LeaderboardService struct {
	strategies    *strategies.StrategyRepository
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	valuation     *portfolio.Service
	log           zerolog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	strategyRepo *strategies.StrategyRepository,
	allocationRepo *strategies.PortfolioStrategyRepository,
	relationshipRepo *copytrading.Repository,
	valuation *portfolio.Service,
	log zerolog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		strategies:    strategyRepo,
		allocations:   allocationRepo,
		relationships: relationshipRepo,
		valuation:     valuation,
		log:           log.With().Str("service", "leaderboard").Logger(),
	}
}

// Strategies ranks active strategies by the average return of the
// portfolios running them, best first. Strategies nobody runs rank last.
func (s *LeaderboardService) Strategies() ([]StrategyRanking, error) {
	list, err := s.strategies.List(true)
	if err != nil {
		return nil, err
	}

	rankings := make([]StrategyRanking, 0, len(list))
	for _, strategy := range list {
		running, err := s.allocations.ListActiveByStrategy(strategy.ID)
		if err != nil {
			return nil, err
		}

		seen := make(map[int64]bool, len(running))
		returns := make([]float64, 0, len(running))
		for _, ps := range running {
			if seen[ps.PortfolioID] {
				continue
			}
			seen[ps.PortfolioID] = true
			ret, err := s.valuation.ReturnPercentage(ps.PortfolioID)
			if err != nil {
				return nil, err
			}
			returns = append(returns, ret.InexactFloat64())
		}

		rankings = append(rankings, StrategyRanking{
			StrategyID:    strategy.ID,
			Name:          strategy.Name,
			RiskLevel:     strategy.RiskLevel,
			Portfolios:    len(returns),
			AverageReturn: decimal.NewFromFloat(formulas.Mean(returns)).Round(2),
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if (rankings[i].Portfolios == 0) != (rankings[j].Portfolios == 0) {
			return rankings[j].Portfolios == 0
		}
		return rankings[i].AverageReturn.GreaterThan(rankings[j].AverageReturn)
	})
	return rankings, nil
}

// Leaders ranks portfolios with active followers by return, best first
func (s *LeaderboardService) Leaders() ([]LeaderRanking, error) {
	stats, err := s.relationships.LeaderStats()
	if err != nil {
		return nil, err
	}

	rankings := make([]LeaderRanking, 0, len(stats))
	for _, stat := range stats {
		ret, err := s.valuation.ReturnPercentage(stat.LeaderID)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, LeaderRanking{
			PortfolioID:      stat.LeaderID,
			Followers:        stat.FollowerCount,
			ReturnPercentage: ret,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].ReturnPercentage.GreaterThan(rankings[j].ReturnPercentage)
	})
	return rankings, nil
}
