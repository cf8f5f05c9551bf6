package pipeline

import (
	"context"
	"fmt"

	"blockminds/internal/domain"
)

// SyncCatalog refreshes the asset catalog from the upstream coin list.
func (p *Pipeline) SyncCatalog(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.sync-catalog")
	defer span.End()

	entries, err := p.deps.Market.FetchCatalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch catalog: %w", err)
	}
	n, err := p.deps.Universe.UpsertCatalog(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("store catalog: %w", err)
	}
	p.logger.Info().Int("entries", n).Msg("catalog synced")
	return n, nil
}

// HistoryReport counts the outcome of an hourly history refresh.
type HistoryReport struct {
	Refreshed int
	Failed    []string
}

// RefreshHourlyHistory replaces each universe asset's hourly series with the
// last day of prices. Per-asset failures are counted, not returned.
func (p *Pipeline) RefreshHourlyHistory(ctx context.Context) (HistoryReport, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.refresh-hourly")
	defer span.End()

	var out HistoryReport
	if p.deps.History == nil {
		return out, nil
	}
	universe, err := ResolveUniverse(ctx, p.deps.Universe, p.opts.Assets)
	if err != nil {
		return out, err
	}
	for _, asset := range universe.Assets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		series, err := p.deps.Market.FetchPriceSeries(ctx, asset.ID, 1)
		if err == nil {
			err = p.deps.History.SaveHistory(ctx, domain.WindowHourly, series)
		}
		if err != nil {
			p.logger.Warn().Str("asset_id", asset.ID).Err(err).Msg("hourly history refresh failed")
			out.Failed = append(out.Failed, asset.ID)
			continue
		}
		out.Refreshed++
	}
	p.logger.Info().Int("refreshed", out.Refreshed).Int("failed", len(out.Failed)).Msg("hourly history refreshed")
	return out, nil
}
