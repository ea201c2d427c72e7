package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// RiskProfileRepository persists each user's chosen/edited RiskProfile
// (spec.md §6 "Persisted state"), satisfying
// internal/modules/analysis.ProfileStore. Grounded on the same
// upsert-by-key pattern as BasketRepository.
type RiskProfileRepository struct {
	*BaseRepository
}

// NewRiskProfileRepository constructs a RiskProfileRepository.
func NewRiskProfileRepository(db *sql.DB, log zerolog.Logger) *RiskProfileRepository {
	return &RiskProfileRepository{BaseRepository: NewBase(db, log.With().Str("repo", "risk_profile").Logger())}
}

// Get returns userID's stored risk profile. If none has been saved yet,
// it returns the "balanced" default template rather than an error, since
// every user implicitly has a profile even before they first customize
// one.
func (r *RiskProfileRepository) Get(userID string) (domain.RiskProfile, error) {
	var body string
	err := r.DB().QueryRow(`SELECT body FROM risk_profiles WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		profile, _ := defaultBalancedTemplate()
		return profile, nil
	}
	if err != nil {
		return domain.RiskProfile{}, fmt.Errorf("failed to query risk profile: %w", err)
	}
	var profile domain.RiskProfile
	if err := json.Unmarshal([]byte(body), &profile); err != nil {
		return domain.RiskProfile{}, fmt.Errorf("failed to decode risk profile: %w", err)
	}
	return profile, nil
}

// Set inserts or replaces userID's risk profile.
func (r *RiskProfileRepository) Set(userID string, profile domain.RiskProfile) error {
	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode risk profile: %w", err)
	}
	_, err = r.DB().Exec(`
		INSERT INTO risk_profiles (user_id, body)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET body = excluded.body
	`, userID, body)
	if err != nil {
		return fmt.Errorf("failed to upsert risk profile: %w", err)
	}
	r.log.Debug().Str("user_id", userID).Str("profile", profile.Name).Msg("risk profile saved")
	return nil
}

// defaultBalancedTemplate avoids importing internal/modules/risk here
// (which would create an import cycle back through internal/modules
// wiring in cmd/server); the numeric defaults mirror risk.DefaultTemplates()'s
// "balanced" entry.
func defaultBalancedTemplate() (domain.RiskProfile, error) {
	return domain.RiskProfile{
		Name:                    "balanced",
		MaxVolatility:           0.12,
		MaxLoss:                 0.15,
		MaxSingleStockWeight:    0.15,
		MaxFactorContribution:   0.70,
		MaxMarketContribution:   0.60,
		MaxIndustryContribution: 0.35,
		MaxSingleFactorLoss:     0.08,
		MaxLeverage:             1.5,
	}, nil
}
