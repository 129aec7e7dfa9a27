package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/bensonidabosa/stonecrestcapital/internal/services"
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*sql.DB, chi.Router) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.ApplySchema(db))

	log := zerolog.Nop()
	portfolios := portfolio.NewPortfolioRepository(db, log)
	holdings := portfolio.NewHoldingRepository(db, log)
	strategyRepo := strategies.NewStrategyRepository(db, log)
	allocations := strategies.NewPortfolioStrategyRepository(db, log)
	relationships := copytrading.NewRepository(db, log)
	valuation := portfolio.NewService(portfolios, holdings, portfolio.NewSnapshotRepository(db, log), decimal.Zero, log)

	ledger := trading.NewLedger(db, assets.NewRepository(db, log), portfolios, holdings, allocations,
		relationships, trading.NewTradeRepository(db, log), nil, trading.LedgerOptions{ConflictRetries: 1}, log)
	engine := services.NewStrategyEngine(db, ledger, portfolios, holdings, valuation, strategyRepo, allocations, relationships, nil, 1, log)
	propagator := services.NewCopyPropagator(db, engine, nil, services.DefaultCopyBuyPercent, services.DefaultCopyMinCash, 1, log)
	leaderboard := services.NewLeaderboardService(strategyRepo, allocations, relationships, valuation, log)

	router := chi.NewRouter()
	NewHandler(propagator, relationships, leaderboard, log).RegisterRoutes(router)
	return db, router
}

func doRequest(router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCopyTradingRoutes(t *testing.T) {
	db, router := setupRouter(t)
	leaderID := testingpkg.SeedPortfolio(t, db, 1, "0")
	followerID := testingpkg.SeedPortfolio(t, db, 2, "10000")
	asset := testingpkg.SeedAsset(t, db, "AAA", "STOCK", "10")
	strategyID := testingpkg.SeedStrategy(t, db, "Solo", testingpkg.AllocationFixture{AssetID: asset, Percentage: "100"})
	testingpkg.SeedPortfolioStrategy(t, db, leaderID, strategyID, nil, "1000")

	rec := doRequest(router, http.MethodPost, "/copy-trading/follow", `{"follower_id":2,"leader_id":1,"amount":"5000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var follow services.FollowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &follow))
	assert.True(t, follow.Relationship.RemainingCash.Equal(decimal.NewFromInt(4000)))
	require.Len(t, follow.Pass.Slices, 1)
	assert.True(t, follow.Pass.Slices[0].Created)

	rec = doRequest(router, http.MethodPost, "/copy-trading/follow", `{"follower_id":2,"leader_id":1,"amount":"100"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already following")

	rec = doRequest(router, http.MethodGet, "/copy-trading/followers/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doRequest(router, http.MethodGet, "/copy-trading/leaders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var leaders struct {
		Leaders []services.LeaderRanking `json:"leaders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leaders))
	require.Len(t, leaders.Leaders, 1)
	assert.Equal(t, leaderID, leaders.Leaders[0].PortfolioID)
	assert.Equal(t, 1, leaders.Leaders[0].Followers)

	rec = doRequest(router, http.MethodPost, "/copy-trading/stop", `{"follower_id":2,"leader_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, err := portfolio.NewPortfolioRepository(db, zerolog.Nop()).GetByID(followerID)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(decimal.NewFromInt(10000)), "everything returns at unchanged prices")
	assert.Equal(t, 0, testingpkg.CountRows(t, db, "copy_relationships", ""))
}

func TestCopyTradingRoutes_Errors(t *testing.T) {
	db, router := setupRouter(t)
	testingpkg.SeedPortfolio(t, db, 1, "0")
	testingpkg.SeedPortfolio(t, db, 2, "100")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"self follow", "/copy-trading/follow", `{"follower_id":2,"leader_id":2,"amount":"50"}`, http.StatusUnprocessableEntity},
		{"bad amount", "/copy-trading/follow", `{"follower_id":2,"leader_id":1,"amount":"abc"}`, http.StatusBadRequest},
		{"above free cash", "/copy-trading/follow", `{"follower_id":2,"leader_id":1,"amount":"500"}`, http.StatusUnprocessableEntity},
		{"unknown leader", "/copy-trading/follow", `{"follower_id":2,"leader_id":9,"amount":"50"}`, http.StatusNotFound},
		{"not following", "/copy-trading/stop", `{"follower_id":2,"leader_id":1}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
