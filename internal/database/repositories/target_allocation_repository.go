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

// TargetAllocationRepository persists the per-scope target weights a user
// wants their portfolio to drift toward (spec.md §6 "Persisted state").
// Trade preview writes the caller's target weights here; its leg deltas
// come from the what-if scenario, not from a stored target.
type TargetAllocationRepository struct {
	*BaseRepository
}

// NewTargetAllocationRepository constructs a TargetAllocationRepository.
func NewTargetAllocationRepository(db *sql.DB, log zerolog.Logger) *TargetAllocationRepository {
	return &TargetAllocationRepository{BaseRepository: NewBase(db, log.With().Str("repo", "target_allocation").Logger())}
}

// Set inserts or replaces the target allocation for (userID, scope).
func (r *TargetAllocationRepository) Set(userID, scope string, weights map[string]float64) error {
	body, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to encode target weights: %w", err)
	}
	_, err = r.DB().Exec(`
		INSERT INTO target_allocations (user_id, scope, weights, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, scope) DO UPDATE SET weights = excluded.weights, updated_at = excluded.updated_at
	`, userID, scope, body, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert target allocation: %w", err)
	}
	return nil
}

// Get returns the target allocation for (userID, scope), or nil if none
// has been set.
func (r *TargetAllocationRepository) Get(userID, scope string) (*domain.TargetAllocation, error) {
	var body, updatedAt string
	err := r.DB().QueryRow(`SELECT weights, updated_at FROM target_allocations WHERE user_id = ? AND scope = ?`, userID, scope).Scan(&body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query target allocation: %w", err)
	}
	var weights map[string]float64
	if err := json.Unmarshal([]byte(body), &weights); err != nil {
		return nil, fmt.Errorf("failed to decode target weights: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		ts = time.Time{}
	}
	return &domain.TargetAllocation{UserID: userID, Scope: scope, Weights: weights, UpdatedAt: ts}, nil
}
