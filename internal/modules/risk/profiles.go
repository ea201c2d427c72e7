package risk

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
)

// profileDoc mirrors domain.RiskProfile with YAML tags for the static
// template catalog, grounded on internal/modules/contracts/catalog.go's
// YAML-config-file pattern.
type profileDoc struct {
	Name                    string                 `yaml:"name"`
	MaxVolatility           float64                `yaml:"max_volatility"`
	MaxLoss                 float64                `yaml:"max_loss"`
	MaxSingleStockWeight    float64                `yaml:"max_single_stock_weight"`
	MaxFactorContribution   float64                `yaml:"max_factor_contribution"`
	MaxMarketContribution   float64                `yaml:"max_market_contribution"`
	MaxIndustryContribution float64                `yaml:"max_industry_contribution"`
	MaxSingleFactorLoss     float64                `yaml:"max_single_factor_loss"`
	MaxLeverage             float64                `yaml:"max_leverage"`
	FactorBetaCaps          map[string][2]float64  `yaml:"factor_beta_caps"`
}

func (d profileDoc) toDomain() domain.RiskProfile {
	return domain.RiskProfile{
		Name:                    d.Name,
		MaxVolatility:           d.MaxVolatility,
		MaxLoss:                 d.MaxLoss,
		MaxSingleStockWeight:    d.MaxSingleStockWeight,
		MaxFactorContribution:   d.MaxFactorContribution,
		MaxMarketContribution:   d.MaxMarketContribution,
		MaxIndustryContribution: d.MaxIndustryContribution,
		MaxSingleFactorLoss:     d.MaxSingleFactorLoss,
		MaxLeverage:             d.MaxLeverage,
		FactorBetaCaps:          d.FactorBetaCaps,
	}
}

// TemplateCatalog holds the named risk-profile templates (income, growth,
// trading, balanced — spec.md §3 "Lifecycles").
type TemplateCatalog struct {
	byName map[string]domain.RiskProfile
}

// LoadTemplates parses a YAML document of the form:
//
//	profiles:
//	  - name: income
//	    max_volatility: 0.08
//	    ...
func LoadTemplates(data []byte) (*TemplateCatalog, error) {
	var doc struct {
		Profiles []profileDoc `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("risk: parse template catalog: %w", err)
	}
	catalog := &TemplateCatalog{byName: make(map[string]domain.RiskProfile, len(doc.Profiles))}
	for _, p := range doc.Profiles {
		catalog.byName[p.Name] = p.toDomain()
	}
	return catalog, nil
}

// Lookup returns a named template and whether it was found.
func (c *TemplateCatalog) Lookup(name string) (domain.RiskProfile, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// DefaultTemplates returns the four built-in lifecycle templates
// (spec.md §3) as a fallback when no YAML override is configured.
// Conservative numbers reflecting each lifecycle's risk posture: income
// (capital preservation), growth (equity-heavy), trading (higher
// leverage/turnover tolerance), balanced (middle ground).
func DefaultTemplates() *TemplateCatalog {
	return &TemplateCatalog{byName: map[string]domain.RiskProfile{
		"income": {
			Name: "income", MaxVolatility: 0.08, MaxLoss: 0.10,
			MaxSingleStockWeight: 0.10, MaxFactorContribution: 0.60,
			MaxMarketContribution: 0.50, MaxIndustryContribution: 0.30,
			MaxSingleFactorLoss: 0.05, MaxLeverage: 1.0,
		},
		"balanced": {
			Name: "balanced", MaxVolatility: 0.12, MaxLoss: 0.15,
			MaxSingleStockWeight: 0.15, MaxFactorContribution: 0.70,
			MaxMarketContribution: 0.60, MaxIndustryContribution: 0.35,
			MaxSingleFactorLoss: 0.08, MaxLeverage: 1.5,
		},
		"growth": {
			Name: "growth", MaxVolatility: 0.20, MaxLoss: 0.25,
			MaxSingleStockWeight: 0.20, MaxFactorContribution: 0.85,
			MaxMarketContribution: 0.80, MaxIndustryContribution: 0.45,
			MaxSingleFactorLoss: 0.12, MaxLeverage: 2.0,
		},
		"trading": {
			Name: "trading", MaxVolatility: 0.35, MaxLoss: 0.40,
			MaxSingleStockWeight: 0.30, MaxFactorContribution: 0.95,
			MaxMarketContribution: 0.90, MaxIndustryContribution: 0.60,
			MaxSingleFactorLoss: 0.20, MaxLeverage: 4.0,
		},
	}}
}
