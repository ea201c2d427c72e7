package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// TradePreviewRepository persists priced trade previews and the
// basket-trade groups that link a multi-leg basket trade's individual
// previews (spec.md §6 "Persisted state": "preview_trade, execute_trade,
// preview_basket_trade, execute_basket_trade"). IDs are
// github.com/google/uuid v4 strings, matching the teacher's indirect
// dependency on the same package for generated identifiers.
type TradePreviewRepository struct {
	*BaseRepository
}

// NewTradePreviewRepository constructs a TradePreviewRepository.
func NewTradePreviewRepository(db *sql.DB, log zerolog.Logger) *TradePreviewRepository {
	return &TradePreviewRepository{BaseRepository: NewBase(db, log.With().Str("repo", "trade_preview").Logger())}
}

// Create stores an already-priced TradePreview, assigning it a fresh ID.
func (r *TradePreviewRepository) Create(p domain.TradePreview) (domain.TradePreview, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()

	deltas, err := json.Marshal(p.LegDeltas)
	if err != nil {
		return domain.TradePreview{}, fmt.Errorf("failed to encode leg deltas: %w", err)
	}

	_, err = r.DB().Exec(`
		INSERT INTO trade_previews
			(id, user_id, scope, leg_deltas, est_cost_amount, est_cost_currency,
			 risk_before, risk_after, created_at, executed_at, drift_warning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Scope, deltas, p.EstCost.Amount, p.EstCost.Currency,
		p.RiskBefore, p.RiskAfter, p.CreatedAt.Format(time.RFC3339), nil, p.DriftWarning)
	if err != nil {
		return domain.TradePreview{}, fmt.Errorf("failed to insert trade preview: %w", err)
	}
	return p, nil
}

// Get returns a previously stored preview by ID.
func (r *TradePreviewRepository) Get(id string) (*domain.TradePreview, error) {
	row := r.DB().QueryRow(`
		SELECT id, user_id, scope, leg_deltas, est_cost_amount, est_cost_currency,
		       risk_before, risk_after, created_at, executed_at, drift_warning
		FROM trade_previews WHERE id = ?
	`, id)
	return scanTradePreview(row)
}

// MarkExecuted records the preview as executed at now, optionally flagged
// for re-priced cost drift (spec.md's "flag drift_warning when previewed
// vs. re-priced cost differs by >1%").
func (r *TradePreviewRepository) MarkExecuted(id string, driftWarning bool) error {
	_, err := r.DB().Exec(`UPDATE trade_previews SET executed_at = ?, drift_warning = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339), driftWarning, id)
	if err != nil {
		return fmt.Errorf("failed to mark preview executed: %w", err)
	}
	return nil
}

// CreateBasketGroup groups previewIDs under a new BasketTradeGroup so
// execute_basket_trade can look up every leg of the basket trade.
func (r *TradePreviewRepository) CreateBasketGroup(userID, basketName string, previewIDs []string) (domain.BasketTradeGroup, error) {
	group := domain.BasketTradeGroup{
		ID:         uuid.NewString(),
		UserID:     userID,
		BasketName: basketName,
		PreviewIDs: previewIDs,
		CreatedAt:  time.Now(),
	}
	_, err := r.DB().Exec(`
		INSERT INTO basket_trade_groups (id, user_id, basket_name, preview_ids, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, group.ID, group.UserID, group.BasketName, strings.Join(previewIDs, ","), group.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return domain.BasketTradeGroup{}, fmt.Errorf("failed to insert basket trade group: %w", err)
	}
	return group, nil
}

// GetBasketGroup returns a basket-trade group and its member previews.
func (r *TradePreviewRepository) GetBasketGroup(id string) (*domain.BasketTradeGroup, []domain.TradePreview, error) {
	var userID, basketName, previewIDs, createdAt string
	err := r.DB().QueryRow(`SELECT user_id, basket_name, preview_ids, created_at FROM basket_trade_groups WHERE id = ?`, id).
		Scan(&userID, &basketName, &previewIDs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query basket trade group: %w", err)
	}
	ids := strings.Split(previewIDs, ",")
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		ts = time.Time{}
	}
	group := &domain.BasketTradeGroup{ID: id, UserID: userID, BasketName: basketName, PreviewIDs: ids, CreatedAt: ts}

	previews := make([]domain.TradePreview, 0, len(ids))
	for _, pid := range ids {
		p, err := r.Get(pid)
		if err != nil {
			return nil, nil, err
		}
		if p != nil {
			previews = append(previews, *p)
		}
	}
	return group, previews, nil
}

func scanTradePreview(row *sql.Row) (*domain.TradePreview, error) {
	var p domain.TradePreview
	var deltas string
	var createdAt string
	var executedAt sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Scope, &deltas, &p.EstCost.Amount, &p.EstCost.Currency,
		&p.RiskBefore, &p.RiskAfter, &createdAt, &executedAt, &p.DriftWarning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade preview: %w", err)
	}
	if err := json.Unmarshal([]byte(deltas), &p.LegDeltas); err != nil {
		return nil, fmt.Errorf("failed to decode leg deltas: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = ts
	}
	if executedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, executedAt.String); err == nil {
			p.ExecutedAt = &ts
		}
	}
	return &p, nil
}
