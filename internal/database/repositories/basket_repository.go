package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// BasketRepository persists user-defined baskets (spec.md §3 "Lifecycles",
// §6 "Persisted state"). Grounded on the teacher's
// internal/modules/portfolio/portfolio_repository.go upsert/scan shape,
// generalized from a single snapshots table to a (user_id, name)-keyed
// basket table with a JSON-encoded ticker/weight body.
type BasketRepository struct {
	*BaseRepository
}

// NewBasketRepository constructs a BasketRepository.
func NewBasketRepository(db *sql.DB, log zerolog.Logger) *BasketRepository {
	return &BasketRepository{BaseRepository: NewBase(db, log.With().Str("repo", "basket").Logger())}
}

type basketRow struct {
	Tickers         []string           `json:"tickers"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	WeightingMethod string             `json:"weighting_method"`
}

// Upsert inserts or replaces the named basket for userID.
func (r *BasketRepository) Upsert(b domain.Basket) error {
	body, err := json.Marshal(basketRow{Tickers: b.Tickers, Weights: b.Weights, WeightingMethod: b.WeightingMethod})
	if err != nil {
		return fmt.Errorf("failed to encode basket body: %w", err)
	}

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO baskets (user_id, name, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, b.UserID, b.Name, body, b.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert basket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Str("user_id", b.UserID).Str("name", b.Name).Msg("basket upserted")
	return nil
}

// Get returns the named basket for userID, or nil if it doesn't exist.
func (r *BasketRepository) Get(userID, name string) (*domain.Basket, error) {
	var body string
	var updatedAt string
	err := r.DB().QueryRow(`SELECT body, updated_at FROM baskets WHERE user_id = ? AND name = ?`, userID, name).Scan(&body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query basket: %w", err)
	}
	return decodeBasket(userID, name, body, updatedAt)
}

// List returns every basket belonging to userID.
func (r *BasketRepository) List(userID string) ([]domain.Basket, error) {
	rows, err := r.DB().Query(`SELECT name, body, updated_at FROM baskets WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query baskets: %w", err)
	}
	defer rows.Close()

	var out []domain.Basket
	for rows.Next() {
		var name, body, updatedAt string
		if err := rows.Scan(&name, &body, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan basket: %w", err)
		}
		b, err := decodeBasket(userID, name, body, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Delete removes the named basket for userID.
func (r *BasketRepository) Delete(userID, name string) error {
	_, err := r.DB().Exec(`DELETE FROM baskets WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to delete basket: %w", err)
	}
	return nil
}

func decodeBasket(userID, name, body, updatedAt string) (*domain.Basket, error) {
	var row basketRow
	if err := json.Unmarshal([]byte(body), &row); err != nil {
		return nil, fmt.Errorf("failed to decode basket body: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		ts = time.Time{}
	}
	return &domain.Basket{
		UserID:          userID,
		Name:            name,
		Tickers:         row.Tickers,
		Weights:         row.Weights,
		WeightingMethod: row.WeightingMethod,
		UpdatedAt:       ts,
	}, nil
}
