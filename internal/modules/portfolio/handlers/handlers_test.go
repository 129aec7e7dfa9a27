package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.ApplySchema(db))

	log := zerolog.Nop()
	portfolios := portfolio.NewPortfolioRepository(db, log)
	holdings := portfolio.NewHoldingRepository(db, log)
	snapshots := portfolio.NewSnapshotRepository(db, log)
	service := portfolio.NewService(portfolios, holdings, snapshots, decimal.RequireFromString("1000000.00"), log)

	router := chi.NewRouter()
	NewHandler(service, portfolios, holdings, snapshots, log).RegisterRoutes(router)
	return router
}

func doRequest(router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPortfolioRoutes(t *testing.T) {
	router := setupRouter(t)

	rec := doRequest(router, http.MethodPost, "/portfolios/", `{"user_id":7,"name":"Main"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created portfolio.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.CashBalance.Equal(decimal.NewFromInt(1000000)))
	assert.False(t, created.IsKYCVerified)

	rec = doRequest(router, http.MethodGet, "/portfolios/1/", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary portfolio.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(7), summary.Portfolio.UserID)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, summary.ReturnPercentage.IsZero())

	rec = doRequest(router, http.MethodPost, "/portfolios/1/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/portfolios/1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Snapshots []portfolio.Snapshot `json:"snapshots"`
		Count     int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Equal(t, 1, history.Count)
	assert.Equal(t, portfolio.SnapshotManual, history.Snapshots[0].Source)

	rec = doRequest(router, http.MethodGet, "/portfolios/1/performance?window=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report portfolio.PerformanceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.SnapshotCount)

	rec = doRequest(router, http.MethodPut, "/portfolios/1/kyc", `{"verified":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified portfolio.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.IsKYCVerified)

	rec = doRequest(router, http.MethodGet, "/portfolios/1/lots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = doRequest(router, http.MethodGet, "/portfolios/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestPortfolioRoutes_Errors(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing user", http.MethodPost, "/portfolios/", `{"name":"x"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/portfolios/", `{`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/portfolios/abc/", "", http.StatusBadRequest},
		{"unknown portfolio", http.MethodGet, "/portfolios/99/", "", http.StatusNotFound},
		{"unknown lots", http.MethodGet, "/portfolios/99/lots", "", http.StatusNotFound},
		{"unknown kyc", http.MethodPut, "/portfolios/99/kyc", `{"verified":true}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
