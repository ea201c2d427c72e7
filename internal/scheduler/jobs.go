package scheduler

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/cache"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
)

// PanelRefresher reloads the shared factor-return panel from its backing
// source (price history + basket columns). Implemented by whatever wires
// cmd/server together; kept as an interface here so this job has no
// dependency on priceseries/providers wiring details.
type PanelRefresher interface {
	Refresh(ctx context.Context) error
}

// FactorPanelRefreshJob reloads the process-wide factor-return panel on a
// fixed schedule, per spec.md §4.5/§4.9's "shared resource, process-wide,
// read-heavy" policy — refreshed out-of-band rather than on every
// request.
type FactorPanelRefreshJob struct {
	panel PanelRefresher
	log   zerolog.Logger
}

// NewFactorPanelRefreshJob constructs the job.
func NewFactorPanelRefreshJob(panel PanelRefresher, log zerolog.Logger) *FactorPanelRefreshJob {
	return &FactorPanelRefreshJob{panel: panel, log: log.With().Str("job", "factor_panel_refresh").Logger()}
}

func (j *FactorPanelRefreshJob) Name() string { return "factor_panel_refresh" }

func (j *FactorPanelRefreshJob) Run() error {
	if err := j.panel.Refresh(context.Background()); err != nil {
		j.log.Error().Err(err).Msg("factor panel refresh failed")
		return err
	}
	j.log.Debug().Msg("factor panel refreshed")
	return nil
}

// ContractRosterRefreshJob reloads the contract catalog's YAML definition
// file from disk, grounded on teacher contracts/catalog.go's LoadYAML
// atomic-replace semantics — a roster edit on disk takes effect on the
// next tick without a process restart.
type ContractRosterRefreshJob struct {
	catalog  *contracts.Catalog
	yamlPath string
	log      zerolog.Logger
}

// NewContractRosterRefreshJob constructs the job.
func NewContractRosterRefreshJob(catalog *contracts.Catalog, yamlPath string, log zerolog.Logger) *ContractRosterRefreshJob {
	return &ContractRosterRefreshJob{catalog: catalog, yamlPath: yamlPath, log: log.With().Str("job", "contract_roster_refresh").Logger()}
}

func (j *ContractRosterRefreshJob) Name() string { return "contract_roster_refresh" }

func (j *ContractRosterRefreshJob) Run() error {
	data, err := os.ReadFile(j.yamlPath)
	if err != nil {
		j.log.Error().Err(err).Str("path", j.yamlPath).Msg("failed to read contract roster")
		return err
	}
	if err := j.catalog.LoadYAML(data); err != nil {
		j.log.Error().Err(err).Msg("failed to reload contract catalog")
		return err
	}
	return nil
}

// CacheEvictionJob sweeps expired entries out of the process-wide result
// cache (spec.md §4.10), bounding memory use for analyses nobody has
// requested since their TTL expired.
type CacheEvictionJob struct {
	cache *cache.Cache
	log   zerolog.Logger
}

// NewCacheEvictionJob constructs the job.
func NewCacheEvictionJob(c *cache.Cache, log zerolog.Logger) *CacheEvictionJob {
	return &CacheEvictionJob{cache: c, log: log.With().Str("job", "cache_eviction").Logger()}
}

func (j *CacheEvictionJob) Name() string { return "cache_eviction" }

func (j *CacheEvictionJob) Run() error {
	evicted := j.cache.EvictExpired()
	if evicted > 0 {
		j.log.Debug().Int("evicted", evicted).Msg("evicted expired cache entries")
	}
	return nil
}
