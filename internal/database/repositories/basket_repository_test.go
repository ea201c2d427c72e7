package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, InitSchema(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBasketRepository_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBasketRepository(db, zerolog.Nop())

	b := domain.Basket{
		UserID:          "u1",
		Name:            "tech",
		Tickers:         []string{"AAPL", "MSFT"},
		Weights:         map[string]float64{"AAPL": 0.6, "MSFT": 0.4},
		WeightingMethod: "custom",
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, repo.Upsert(b))

	got, err := repo.Get("u1", "tech")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []string{"AAPL", "MSFT"}, got.Tickers)
	require.InDelta(t, 0.6, got.Weights["AAPL"], 1e-9)

	// Upsert replaces rather than duplicates.
	b.Tickers = []string{"AAPL", "MSFT", "GOOG"}
	require.NoError(t, repo.Upsert(b))
	list, err := repo.List("u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Tickers, 3)
}

func TestBasketRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBasketRepository(db, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.Basket{UserID: "u1", Name: "tech", Tickers: []string{"AAPL"}, UpdatedAt: time.Now()}))
	require.NoError(t, repo.Delete("u1", "tech"))

	got, err := repo.Get("u1", "tech")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRiskProfileRepository_GetReturnsBalancedDefaultWhenUnset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRiskProfileRepository(db, zerolog.Nop())

	p, err := repo.Get("new-user")
	require.NoError(t, err)
	require.Equal(t, "balanced", p.Name)
}

func TestRiskProfileRepository_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRiskProfileRepository(db, zerolog.Nop())

	profile := domain.RiskProfile{Name: "growth", MaxVolatility: 0.20, MaxLeverage: 2.0}
	require.NoError(t, repo.Set("u1", profile))

	got, err := repo.Get("u1")
	require.NoError(t, err)
	require.Equal(t, "growth", got.Name)
	require.InDelta(t, 2.0, got.MaxLeverage, 1e-9)
}

func TestTargetAllocationRepository_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetAllocationRepository(db, zerolog.Nop())

	require.NoError(t, repo.Set("u1", "all", map[string]float64{"AAPL": 0.5, "MSFT": 0.5}))

	got, err := repo.Get("u1", "all")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.InDelta(t, 0.5, got.Weights["MSFT"], 1e-9)

	missing, err := repo.Get("u1", "equities")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTradePreviewRepository_CreateGetAndMarkExecuted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradePreviewRepository(db, zerolog.Nop())

	p, err := repo.Create(domain.TradePreview{
		UserID:     "u1",
		Scope:      "all",
		LegDeltas:  map[string]float64{"AAPL": 0.1, "MSFT": -0.1},
		EstCost:    domain.Money{Amount: 125.50, Currency: "USD"},
		RiskBefore: 0.12,
		RiskAfter:  0.13,
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	got, err := repo.Get(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Nil(t, got.ExecutedAt)
	require.InDelta(t, 0.1, got.LegDeltas["AAPL"], 1e-9)

	require.NoError(t, repo.MarkExecuted(p.ID, true))
	got, err = repo.Get(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExecutedAt)
	require.True(t, got.DriftWarning)
}

func TestTradePreviewRepository_BasketGroup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradePreviewRepository(db, zerolog.Nop())

	p1, err := repo.Create(domain.TradePreview{UserID: "u1", Scope: "all", LegDeltas: map[string]float64{"AAPL": 0.1}})
	require.NoError(t, err)
	p2, err := repo.Create(domain.TradePreview{UserID: "u1", Scope: "all", LegDeltas: map[string]float64{"MSFT": -0.1}})
	require.NoError(t, err)

	group, err := repo.CreateBasketGroup("u1", "tech", []string{p1.ID, p2.ID})
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)

	gotGroup, previews, err := repo.GetBasketGroup(group.ID)
	require.NoError(t, err)
	require.NotNil(t, gotGroup)
	require.Equal(t, "tech", gotGroup.BasketName)
	require.Len(t, previews, 2)
}
