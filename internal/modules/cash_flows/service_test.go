package cash_flows

import (
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupService(t *testing.T) (*Service, *portfolio.PortfolioRepository, *events.Bus, int64) {
	t.Helper()
	db := testingpkg.NewTestConn(t)
	log := zerolog.Nop()
	bus := events.NewBus(log)
	portfolios := portfolio.NewPortfolioRepository(db, log)
	svc := NewService(db, NewRepository(db, log), portfolios, events.NewManager(bus, nil, log), 2, log)
	return svc, portfolios, bus, testingpkg.SeedPortfolio(t, db, 1, "1000")
}

func TestDeposit(t *testing.T) {
	svc, portfolios, bus, portfolioID := setupService(t)

	var updates []*events.CashUpdatedData
	bus.Subscribe(events.CashUpdated, func(e events.Event) error {
		updates = append(updates, e.Data.(*events.CashUpdatedData))
		return nil
	})

	flow, err := svc.Deposit(portfolioID, dec("250.505"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, flow.Status)
	assert.True(t, flow.Amount.Equal(dec("250.5")), "settled to cents half-even")
	assert.True(t, flow.BalanceAfter.Equal(dec("1250.5")))

	p, err := portfolios.GetByID(portfolioID)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(dec("1250.5")))

	require.Len(t, updates, 1)
	assert.Equal(t, "DEPOSIT", updates[0].Reason)

	_, err = svc.Deposit(portfolioID, dec("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWithdraw_RequiresKYC(t *testing.T) {
	svc, portfolios, _, portfolioID := setupService(t)

	_, err := svc.Withdraw(portfolioID, dec("100"))
	assert.ErrorIs(t, err, domain.ErrKYCRequired)

	p, err := portfolios.GetByID(portfolioID)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(dec("1000")), "rejected withdrawal moves nothing")

	flows, err := svc.Flows().ListByPortfolio(portfolioID)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestWithdraw_DebitsAndStaysPending(t *testing.T) {
	svc, portfolios, _, portfolioID := setupService(t)
	require.NoError(t, portfolios.SetKYCVerified(portfolioID, true))

	_, err := svc.Withdraw(portfolioID, dec("1000.01"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	flow, err := svc.Withdraw(portfolioID, dec("400"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, flow.Status)
	assert.True(t, flow.BalanceAfter.Equal(dec("600")))

	p, err := portfolios.GetByID(portfolioID)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(dec("600")))

	completed, err := svc.CompleteWithdrawal(flow.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = svc.CompleteWithdrawal(flow.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "only pending flows complete")

	_, err = svc.Deposit(portfolioID, dec("50"))
	require.NoError(t, err)
	totals, err := svc.Flows().GetTotalsByType(portfolioID)
	require.NoError(t, err)
	assert.True(t, totals[FlowWithdrawal].Equal(dec("400")))
	assert.True(t, totals[FlowDeposit].Equal(dec("50")))
}
