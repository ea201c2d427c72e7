package wiring

import (
	"context"

	"github.com/henrysouchien/portfolio-risk-engine/internal/database/repositories"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// ProfileStore adapts repositories.RiskProfileRepository's synchronous
// methods to analysis.ProfileStore's context-carrying signature; the
// repository itself takes no context since sqlite calls here are never
// long-running enough to need cancellation.
type ProfileStore struct {
	repo *repositories.RiskProfileRepository
}

// NewProfileStore constructs a ProfileStore.
func NewProfileStore(repo *repositories.RiskProfileRepository) *ProfileStore {
	return &ProfileStore{repo: repo}
}

// Get implements analysis.ProfileStore.
func (s *ProfileStore) Get(ctx context.Context, userID string) (domain.RiskProfile, error) {
	return s.repo.Get(userID)
}

// Set implements analysis.ProfileStore.
func (s *ProfileStore) Set(ctx context.Context, userID string, profile domain.RiskProfile) error {
	return s.repo.Set(userID, profile)
}
