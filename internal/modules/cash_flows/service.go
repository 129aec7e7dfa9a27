package cash_flows

import (
	"database/sql"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service applies deposits and withdrawals to free cash
type Service struct {
	db         *sql.DB
	flows      *Repository
	portfolios *portfolio.PortfolioRepository
	events     *events.Manager
	retries    int
	log        zerolog.Logger
}

// NewService creates a cash flow service. eventManager may be nil.
func NewService(
	db *sql.DB,
	flows *Repository,
	portfolios *portfolio.PortfolioRepository,
	eventManager *events.Manager,
	retries int,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:         db,
		flows:      flows,
		portfolios: portfolios,
		events:     eventManager,
		retries:    retries,
		log:        log.With().Str("service", "cash_flows").Logger(),
	}
}

// Flows returns the cash flow repository
func (s *Service) Flows() *Repository {
	return s.flows
}

// Deposit credits free cash and records a COMPLETED deposit
func (s *Service) Deposit(portfolioID int64, amount decimal.Decimal) (*CashFlow, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	amount = domain.Settle(amount)

	return s.apply(portfolioID, FlowDeposit, func(p *portfolio.Portfolio) (decimal.Decimal, Status, error) {
		return p.CashBalance.Add(amount), StatusCompleted, nil
	}, amount)
}

// Withdraw debits free cash immediately and records a PENDING withdrawal for
// external approval. The portfolio must be KYC verified.
func (s *Service) Withdraw(portfolioID int64, amount decimal.Decimal) (*CashFlow, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	amount = domain.Settle(amount)

	return s.apply(portfolioID, FlowWithdrawal, func(p *portfolio.Portfolio) (decimal.Decimal, Status, error) {
		if !p.IsKYCVerified {
			return decimal.Zero, "", fmt.Errorf("withdrawal from portfolio %d: %w", p.ID, domain.ErrKYCRequired)
		}
		if amount.GreaterThan(p.CashBalance) {
			return decimal.Zero, "", fmt.Errorf("withdraw %s, free cash %s: %w", amount, p.CashBalance, domain.ErrInsufficientFunds)
		}
		return p.CashBalance.Sub(amount), StatusPending, nil
	}, amount)
}

// CompleteWithdrawal records the external approval of a pending withdrawal
func (s *Service) CompleteWithdrawal(id int64) (*CashFlow, error) {
	if err := s.flows.MarkCompleted(id); err != nil {
		return nil, err
	}
	return s.flows.GetByID(id)
}

func (s *Service) apply(
	portfolioID int64,
	flowType FlowType,
	next func(p *portfolio.Portfolio) (decimal.Decimal, Status, error),
	amount decimal.Decimal,
) (*CashFlow, error) {
	var flow *CashFlow
	err := domain.RetryOnConflict(s.retries, s.log, string(flowType), func() error {
		return database.WithTransaction(s.db, func(tx *sql.Tx) error {
			portfolios := s.portfolios.WithTx(tx)
			p, err := portfolios.GetByID(portfolioID)
			if err != nil {
				return err
			}

			balance, status, err := next(p)
			if err != nil {
				return err
			}
			if err := portfolios.UpdateCash(p, balance); err != nil {
				return err
			}

			flow = &CashFlow{
				PortfolioID:  p.ID,
				FlowType:     flowType,
				Amount:       amount,
				Status:       status,
				BalanceAfter: balance,
			}
			return s.flows.WithTx(tx).Create(flow)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("type", string(flowType)).
		Str("amount", amount.String()).
		Str("balance_after", flow.BalanceAfter.String()).
		Msg("Cash flow applied")

	if s.events != nil {
		s.events.Emit("cash_flows", &events.CashUpdatedData{
			PortfolioID: portfolioID,
			Reason:      string(flowType),
			Amount:      amount.String(),
			CashBalance: flow.BalanceAfter.String(),
		})
	}
	return flow, nil
}
