// Package handlers provides HTTP handlers for the asset registry.
package handlers

import (
	"net/http"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles asset HTTP requests
type Handler struct {
	repo *assets.Repository
	log  zerolog.Logger
}

// NewHandler creates a new asset handler
func NewHandler(repo *assets.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "assets").Logger(),
	}
}

// RegisterRoutes registers all asset routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/price", h.HandleUpdatePrice) // Price feed port
	})
}

type createAssetRequest struct {
	Symbol            string                   `json:"symbol"`
	Name              string                   `json:"name"`
	AssetType         assets.AssetType         `json:"asset_type"`
	Price             decimal.Decimal          `json:"price"`
	Volatility        decimal.Decimal          `json:"volatility"`
	AnnualYield       *decimal.Decimal         `json:"annual_yield,omitempty"`
	DividendFrequency assets.DividendFrequency `json:"dividend_frequency,omitempty"`
}

// HandleList returns all assets, optionally filtered by ?type=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		list []assets.Asset
		err  error
	)
	if assetType := r.URL.Query().Get("type"); assetType != "" {
		list, err = h.repo.ListByType(assets.AssetType(assetType))
	} else {
		list, err = h.repo.List()
	}
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if list == nil {
		list = []assets.Asset{}
	}

	utils.WriteJSON(w, h.log, http.StatusOK, list)
}

// HandleCreate registers a new asset
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	asset := &assets.Asset{
		Symbol:            req.Symbol,
		Name:              req.Name,
		AssetType:         req.AssetType,
		Price:             req.Price,
		Volatility:        req.Volatility,
		DividendFrequency: req.DividendFrequency,
	}
	if req.AnnualYield != nil {
		asset.AnnualYield = decimal.NewNullDecimal(*req.AnnualYield)
	}

	if err := h.repo.Create(asset); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusCreated, asset)
}

// HandleGet returns one asset
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "id")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	asset, err := h.repo.GetByID(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, asset)
}

// HandleUpdatePrice records a price from the external price feed
func (h *Handler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "id")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	if err := h.repo.UpdatePrice(id, req.Price); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	asset, err := h.repo.GetByID(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, asset)
}
