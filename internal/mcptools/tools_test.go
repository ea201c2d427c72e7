package mcptools

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/cache"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/analysis"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
)

type stubPortfolios struct{}

func (stubPortfolios) Load(ctx context.Context, userID string, scope canonicalizer.Scope, panelDates []time.Time) (*domain.CanonicalPortfolio, []factor.AssetInput, map[string]domain.AssetClass, error) {
	aapl := domain.Intern(domain.Instrument{Root: "AAPL", Classification: domain.AssetEquity})
	msft := domain.Intern(domain.Instrument{Root: "MSFT", Classification: domain.AssetEquity})
	portfolio := &domain.CanonicalPortfolio{
		UserID: userID, Scope: scope.String(),
		Legs: map[string]domain.PositionLeg{
			aapl.Key(): {Symbol: aapl, WeightByNotional: 0.6, Classification: domain.AssetEquity},
			msft.Key(): {Symbol: msft, WeightByNotional: 0.4, Classification: domain.AssetEquity},
		},
		NotionalLeverage: 1.0,
	}
	series := func(seed float64) []float64 {
		out := make([]float64, 24)
		for i := range out {
			out[i] = 0.01 * math.Sin(seed+float64(i)*0.3)
		}
		return out
	}
	inputs := []factor.AssetInput{
		{Symbol: aapl, Weight: 0.6, Returns: series(1)},
		{Symbol: msft, Weight: 0.4, Returns: series(2)},
	}
	classes := map[string]domain.AssetClass{aapl.Key(): domain.AssetEquity, msft.Key(): domain.AssetEquity}
	return portfolio, inputs, classes, nil
}

type stubProfiles struct{ p domain.RiskProfile }

func (s *stubProfiles) Get(ctx context.Context, userID string) (domain.RiskProfile, error) {
	return s.p, nil
}
func (s *stubProfiles) Set(ctx context.Context, userID string, profile domain.RiskProfile) error {
	s.p = profile
	return nil
}

type stubPanel struct{}

func (stubPanel) Load(ctx context.Context) (*domain.FactorReturnPanel, error) {
	dates := make([]time.Time, 24)
	returns := make([][]float64, 24)
	for i := range dates {
		dates[i] = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		returns[i] = []float64{0.01 * math.Sin(0.3*float64(i)), 0.01 * math.Sin(0.5+0.3*float64(i))}
	}
	return &domain.FactorReturnPanel{
		Dates: dates, Factors: []string{"SPY", "MTUM"}, Returns: returns, Frequency: "monthly",
		Categories: map[string]string{"SPY": "market", "MTUM": "style"},
	}, nil
}

type stubBaskets struct{ items map[string]domain.Basket }

func (s *stubBaskets) List(userID string) ([]domain.Basket, error) {
	var out []domain.Basket
	for _, b := range s.items {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}
func (s *stubBaskets) Get(userID, name string) (*domain.Basket, error) {
	if b, ok := s.items[userID+"/"+name]; ok {
		return &b, nil
	}
	return nil, nil
}
func (s *stubBaskets) Upsert(b domain.Basket) error {
	if s.items == nil {
		s.items = map[string]domain.Basket{}
	}
	s.items[b.UserID+"/"+b.Name] = b
	return nil
}
func (s *stubBaskets) Delete(userID, name string) error {
	delete(s.items, userID+"/"+name)
	return nil
}

type stubTrades struct {
	previews map[string]domain.TradePreview
	groups   map[string]domain.BasketTradeGroup
	seq      int
}

func (s *stubTrades) Create(p domain.TradePreview) (domain.TradePreview, error) {
	if s.previews == nil {
		s.previews = map[string]domain.TradePreview{}
	}
	s.seq++
	p.ID = "preview-" + string(rune('a'+s.seq))
	p.CreatedAt = time.Now()
	s.previews[p.ID] = p
	return p, nil
}

func (s *stubTrades) Get(id string) (*domain.TradePreview, error) {
	if p, ok := s.previews[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *stubTrades) MarkExecuted(id string, driftWarning bool) error {
	p, ok := s.previews[id]
	if !ok {
		return nil
	}
	now := time.Now()
	p.ExecutedAt = &now
	p.DriftWarning = driftWarning
	s.previews[id] = p
	return nil
}

func (s *stubTrades) CreateBasketGroup(userID, basketName string, previewIDs []string) (domain.BasketTradeGroup, error) {
	if s.groups == nil {
		s.groups = map[string]domain.BasketTradeGroup{}
	}
	s.seq++
	group := domain.BasketTradeGroup{ID: "group-" + string(rune('a'+s.seq)), UserID: userID, BasketName: basketName, PreviewIDs: previewIDs, CreatedAt: time.Now()}
	s.groups[group.ID] = group
	return group, nil
}

func (s *stubTrades) GetBasketGroup(id string) (*domain.BasketTradeGroup, []domain.TradePreview, error) {
	group, ok := s.groups[id]
	if !ok {
		return nil, nil, nil
	}
	previews := make([]domain.TradePreview, 0, len(group.PreviewIDs))
	for _, pid := range group.PreviewIDs {
		if p, ok := s.previews[pid]; ok {
			previews = append(previews, p)
		}
	}
	return &group, previews, nil
}

type stubTargets struct{ allocations map[string]domain.TargetAllocation }

func (s *stubTargets) Set(userID, scope string, weights map[string]float64) error {
	if s.allocations == nil {
		s.allocations = map[string]domain.TargetAllocation{}
	}
	s.allocations[userID+"/"+scope] = domain.TargetAllocation{UserID: userID, Scope: scope, Weights: weights, UpdatedAt: time.Now()}
	return nil
}

func (s *stubTargets) Get(userID, scope string) (*domain.TargetAllocation, error) {
	if a, ok := s.allocations[userID+"/"+scope]; ok {
		return &a, nil
	}
	return nil, nil
}

func newTestRegistrar() *Registrar {
	proxySet := domain.FactorProxySet{Market: []string{"SPY"}, Momentum: []string{"MTUM"}, Value: []string{"MTUM"}, Industry: []string{"MTUM"}, Subindustry: []string{"MTUM"}}
	proxies := factor.NewProxyTable(map[string]domain.FactorProxySet{"AAPL": proxySet, "MSFT": proxySet}, factor.DefaultRateEligibleClasses())
	engine := factor.NewEngine(proxies)
	c := cache.New(zerolog.Nop())
	profile := domain.RiskProfile{MaxVolatility: 1.0, MaxSingleStockWeight: 1.0, MaxFactorContribution: 1.0, MaxMarketContribution: 1.0, MaxLeverage: 10.0}
	svc := analysis.NewService(stubPortfolios{}, &stubProfiles{p: profile}, stubPanel{}, engine, c, "v1", time.Minute, zerolog.Nop())
	return NewRegistrar(svc, &stubBaskets{}, &stubTrades{}, &stubTargets{}, contracts.New(zerolog.Nop(), nil), zerolog.Nop())
}

func callResult(t *testing.T, res *mcp.CallToolResult) Result {
	t.Helper()
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected a text content block, got %+v", res.Content[0])
	}
	var out Result
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("failed to unmarshal tool result: %v", err)
	}
	return out
}

func TestHandleGetRiskAnalysis_AgentFormatIncludesSnapshot(t *testing.T) {
	r := newTestRegistrar()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"user_id": "u1", "format": "agent"}

	res, err := r.handleGetRiskAnalysis(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Snapshot == nil {
		t.Fatal("expected a snapshot for format=agent")
	}
}

func TestHandleRunWhatIf_ParsesTargetWeights(t *testing.T) {
	r := newTestRegistrar()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{
		"user_id":        "u1",
		"target_weights": `{"AAPL": 0.1, "MSFT": 0.9}`,
	}

	res, err := r.handleRunWhatIf(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestHandleGetPositions_ReturnsLegs(t *testing.T) {
	r := newTestRegistrar()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"user_id": "u1"}

	res, err := r.handleGetPositions(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestHandleCreateAndGetBasket_RoundTrips(t *testing.T) {
	r := newTestRegistrar()

	createReq := mcp.CallToolRequest{}
	createReq.Params.Arguments = map[string]any{
		"user_id": "u1",
		"name":    "tech",
		"tickers": `["AAPL", "MSFT"]`,
	}
	res, err := r.handleCreateBasket(context.Background(), createReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	getReq := mcp.CallToolRequest{}
	getReq.Params.Arguments = map[string]any{"user_id": "u1", "name": "tech"}
	res, err = r.handleGetBasket(context.Background(), getReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out = callResult(t, res)
	if !out.Success {
		t.Fatalf("expected basket to be found, got %+v", out)
	}
}

func TestHandleDeleteBasket_RemovesIt(t *testing.T) {
	r := newTestRegistrar()
	r.baskets.Upsert(domain.Basket{UserID: "u1", Name: "tech", Tickers: []string{"AAPL"}})

	delReq := mcp.CallToolRequest{}
	delReq.Params.Arguments = map[string]any{"user_id": "u1", "name": "tech"}
	res, err := r.handleDeleteBasket(context.Background(), delReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := callResult(t, res); !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	getReq := mcp.CallToolRequest{}
	getReq.Params.Arguments = map[string]any{"user_id": "u1", "name": "tech"}
	res, err = r.handleGetBasket(context.Background(), getReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := callResult(t, res); out.Success {
		t.Fatalf("expected basket to be gone, got %+v", out)
	}
}

func TestHandlePreviewAndExecuteTrade_RoundTrips(t *testing.T) {
	r := newTestRegistrar()

	previewReq := mcp.CallToolRequest{}
	previewReq.Params.Arguments = map[string]any{
		"user_id":        "u1",
		"target_weights": `{"AAPL": 0.5, "MSFT": 0.5}`,
	}
	res, err := r.handlePreviewTrade(context.Background(), previewReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	summary, ok := out.Summary.(map[string]any)
	if !ok {
		t.Fatalf("expected summary map, got %+v", out.Summary)
	}
	previewID, _ := summary["preview_id"].(string)
	if previewID == "" {
		t.Fatalf("expected a preview_id, got %+v", summary)
	}

	execReq := mcp.CallToolRequest{}
	execReq.Params.Arguments = map[string]any{"preview_id": previewID}
	res, err = r.handleExecuteTrade(context.Background(), execReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out = callResult(t, res)
	if !out.Success {
		t.Fatalf("expected execute success, got %+v", out)
	}

	res, err = r.handleExecuteTrade(context.Background(), execReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := callResult(t, res); out.Success {
		t.Fatalf("expected re-execution of the same preview to fail, got %+v", out)
	}
}

func TestHandlePreviewBasketTrade_CreatesGroupedPreviews(t *testing.T) {
	r := newTestRegistrar()
	r.baskets.Upsert(domain.Basket{UserID: "u1", Name: "tech", Tickers: []string{"AAPL", "MSFT"}, WeightingMethod: "equal"})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"user_id": "u1", "basket_name": "tech"}
	res, err := r.handlePreviewBasketTrade(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestHandleGetFactorRecommendations_SingleMode(t *testing.T) {
	r := newTestRegistrar()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"user_id": "u1", "mode": "single", "overexposed_factor": "SPY"}

	res, err := r.handleGetFactorRecommendations(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestHandleSetRiskProfile_AppliesOverride(t *testing.T) {
	r := newTestRegistrar()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"user_id": "u1", "template": "growth", "max_volatility": 0.5}

	res, err := r.handleSetRiskProfile(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := callResult(t, res)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
}
