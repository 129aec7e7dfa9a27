package assets

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const assetColumns = `id, symbol, name, asset_type, price, volatility, annual_yield, dividend_frequency, created_at, updated_at`

// Repository handles asset database operations
type Repository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db database.Querier, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assets").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q, log: r.log}
}

// Create inserts a new asset and sets its ID
func (r *Repository) Create(asset *Asset) error {
	if err := asset.Validate(); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	now := time.Now()
	result, err := r.db.Exec(`
		INSERT INTO assets (symbol, name, asset_type, price, volatility, annual_yield, dividend_frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		asset.Symbol,
		asset.Name,
		string(asset.AssetType),
		asset.Price.String(),
		asset.Volatility.String(),
		nullDecimal(asset.AnnualYield),
		nullString(string(asset.DividendFrequency)),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset %s: %w", asset.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read asset id: %w", err)
	}
	asset.ID = id
	asset.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	asset.UpdatedAt = asset.CreatedAt

	r.log.Info().Str("symbol", asset.Symbol).Str("type", string(asset.AssetType)).Msg("Asset created")
	return nil
}

// GetByID retrieves an asset by ID
func (r *Repository) GetByID(id int64) (*Asset, error) {
	row := r.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return asset, nil
}

// GetBySymbol retrieves an asset by its symbol
func (r *Repository) GetBySymbol(symbol string) (*Asset, error) {
	row := r.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE symbol = ?", symbol)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return asset, nil
}

// List returns all assets ordered by symbol
func (r *Repository) List() ([]Asset, error) {
	return r.query("SELECT " + assetColumns + " FROM assets ORDER BY symbol")
}

// ListByType returns all assets of one type ordered by symbol
func (r *Repository) ListByType(assetType AssetType) ([]Asset, error) {
	return r.query("SELECT "+assetColumns+" FROM assets WHERE asset_type = ? ORDER BY symbol", string(assetType))
}

// UpdatePrice records a new simulated price. This is the port used by the
// external price feed; the accounting core never calls it.
func (r *Repository) UpdatePrice(id int64, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}

	result, err := r.db.Exec(`UPDATE assets SET price = ?, updated_at = ? WHERE id = ?`,
		price.String(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update price for asset %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
	}

	r.log.Debug().Int64("asset_id", id).Str("price", price.String()).Msg("Asset price updated")
	return nil
}

func (r *Repository) query(query string, args ...interface{}) ([]Asset, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var result []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		result = append(result, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		asset     Asset
		assetType string
		frequency sql.NullString
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&assetType,
		&asset.Price,
		&asset.Volatility,
		&asset.AnnualYield,
		&frequency,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.AssetType = AssetType(assetType)
	if frequency.Valid {
		asset.DividendFrequency = DividendFrequency(frequency.String)
	}
	asset.CreatedAt = time.Unix(createdAt, 0).UTC()
	asset.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &asset, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
