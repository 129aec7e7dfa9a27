package dividends

import (
	"database/sql"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PayoutSummary reports one dividend run
type PayoutSummary struct {
	Payments int             `json:"payments"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Total    decimal.Decimal `json:"total"`
}

// Service pays REIT dividends. Dividends credit free cash directly and never
// touch strategy remaining cash.
type Service struct {
	db         *sql.DB
	assets     *assets.Repository
	portfolios *portfolio.PortfolioRepository
	holdings   *portfolio.HoldingRepository
	dividends  *DividendRepository
	trades     *trading.TradeRepository
	events     *events.Manager
	retries    int
	log        zerolog.Logger
}

// NewService creates a dividend service. eventManager may be nil.
func NewService(
	db *sql.DB,
	assetRepo *assets.Repository,
	portfolioRepo *portfolio.PortfolioRepository,
	holdingRepo *portfolio.HoldingRepository,
	dividendRepo *DividendRepository,
	tradeRepo *trading.TradeRepository,
	eventManager *events.Manager,
	retries int,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:         db,
		assets:     assetRepo,
		portfolios: portfolioRepo,
		holdings:   holdingRepo,
		dividends:  dividendRepo,
		trades:     tradeRepo,
		events:     eventManager,
		retries:    retries,
		log:        log.With().Str("service", "dividends").Logger(),
	}
}

// Dividends returns the dividend log repository
func (s *Service) Dividends() *DividendRepository {
	return s.dividends
}

// PayREITDividends pays one period's dividend on every REIT holding with a
// configured yield: market_value × period_yield / 100, settled to cents.
// Each holding is paid in its own transaction; a failure is logged and the
// run continues.
func (s *Service) PayREITDividends() (*PayoutSummary, error) {
	holdings, err := s.holdings.ListHoldingsByAssetType(assets.AssetTypeREIT)
	if err != nil {
		return nil, fmt.Errorf("failed to load REIT holdings: %w", err)
	}

	summary := &PayoutSummary{Total: decimal.Zero}
	reits := make(map[int64]*assets.Asset)

	for _, holding := range holdings {
		if !holding.Quantity.IsPositive() {
			summary.Skipped++
			continue
		}

		asset, ok := reits[holding.AssetID]
		if !ok {
			asset, err = s.assets.GetByID(holding.AssetID)
			if err != nil {
				return nil, err
			}
			reits[holding.AssetID] = asset
		}

		periodYield, pays := asset.PeriodYield()
		if !pays {
			summary.Skipped++
			continue
		}

		amount := domain.Settle(holding.MarketValue().Mul(periodYield).Div(domain.Hundred))
		if !amount.IsPositive() {
			summary.Skipped++
			continue
		}

		err := domain.RetryOnConflict(s.retries, s.log, "pay_dividend", func() error {
			return s.pay(holding, asset, periodYield, amount)
		})
		if err != nil {
			summary.Failed++
			s.log.Error().
				Err(err).
				Int64("portfolio_id", holding.PortfolioID).
				Str("symbol", asset.Symbol).
				Msg("Dividend payment failed")
			continue
		}

		summary.Payments++
		summary.Total = summary.Total.Add(amount)
	}

	s.log.Info().
		Int("payments", summary.Payments).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("total", summary.Total.String()).
		Msg("REIT dividends paid")

	if s.events != nil && summary.Payments > 0 {
		s.events.Emit("dividends", &events.DividendsPaidData{
			Payments: summary.Payments,
			Total:    summary.Total.String(),
		})
	}
	return summary, nil
}

func (s *Service) pay(holding portfolio.HoldingValue, asset *assets.Asset, periodYield, amount decimal.Decimal) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := s.portfolios.WithTx(tx).AdjustCash(holding.PortfolioID, amount); err != nil {
			return err
		}

		if err := s.dividends.WithTx(tx).Create(&DividendLog{
			PortfolioID: holding.PortfolioID,
			AssetID:     asset.ID,
			Quantity:    holding.Quantity,
			Price:       holding.Price,
			PeriodYield: periodYield,
			Amount:      amount,
		}); err != nil {
			return err
		}

		assetID := asset.ID
		return s.trades.WithTx(tx).Create(&trading.Trade{
			PortfolioID: holding.PortfolioID,
			AssetID:     &assetID,
			TradeType:   trading.TradeTypeDividend,
			Quantity:    decimal.Zero,
			Price:       holding.Price,
			Amount:      amount,
			Note:        asset.Symbol + " dividend payout",
		})
	})
}
