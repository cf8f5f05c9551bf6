// Package onchain resolves an asset's token contract address and DEX liquidity.
package onchain

import (
	"context"
	"errors"
	"sort"
	"strings"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/ethereum/go-ethereum/common"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const preferredChain = "ethereum"

type DexClient interface {
	SearchTokenAddress(ctx context.Context, assetID, symbol string) (string, error)
	TokenLiquidity(ctx context.Context, assetID, address string) (null.Float, error)
}

type Cache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Resolver struct {
	dex    DexClient
	cache  Cache
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewResolver(dex DexClient, cache Cache, tracer trace.Tracer, logger zerolog.Logger) *Resolver {
	return &Resolver{
		dex:    dex,
		cache:  cache,
		tracer: tracer,
		logger: logging.Component(logger, "onchain"),
	}
}

// Resolve returns the contract address and liquidity for snap. The info is
// always usable; a non-nil error describes a lookup that left a field null.
// Only fully successful results are cached.
func (r *Resolver) Resolve(ctx context.Context, snap *domain.MarketSnapshot) (domain.OnChainInfo, error) {
	ctx, span := r.tracer.Start(ctx, "onchain.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("asset_id", snap.AssetID))

	var info domain.OnChainInfo
	if r.cache != nil {
		found, err := r.cache.Get(ctx, snap.AssetID, &info)
		if err != nil {
			r.logger.Warn().Str("asset_id", snap.AssetID).Err(err).Msg("onchain cache read failed")
		} else if found {
			return info, nil
		}
	}

	var errs []error
	info, err := r.contract(ctx, snap)
	if err != nil {
		errs = append(errs, err)
	}

	switch {
	case info.IsNative:
		info.Liquidity = domain.Finite(snap.TotalVolume)
	case info.ContractAddress.Valid && common.IsHexAddress(info.ContractAddress.String) && r.dex != nil:
		liq, err := r.dex.TokenLiquidity(ctx, snap.AssetID, info.ContractAddress.String)
		if err != nil {
			errs = append(errs, err)
		}
		info.Liquidity = domain.Finite(liq)
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Warn().Str("asset_id", snap.AssetID).Err(err).Msg("onchain enrichment incomplete")
		return info, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, snap.AssetID, info); err != nil {
			r.logger.Warn().Str("asset_id", snap.AssetID).Err(err).Msg("onchain cache write failed")
		}
	}
	return info, nil
}

func (r *Resolver) contract(ctx context.Context, snap *domain.MarketSnapshot) (domain.OnChainInfo, error) {
	if snap.HasPlatforms {
		chain, addr := pickPlatform(snap.Platforms)
		if addr == "" {
			return domain.OnChainInfo{
				ContractAddress: null.StringFrom(domain.NativeCoinAddress),
				IsNative:        true,
			}, nil
		}
		return domain.OnChainInfo{ContractAddress: null.StringFrom(normalizeAddress(addr)), Chain: chain}, nil
	}

	if r.dex == nil {
		return domain.OnChainInfo{}, nil
	}
	addr, err := r.dex.SearchTokenAddress(ctx, snap.AssetID, snap.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OnChainInfo{}, nil
		}
		return domain.OnChainInfo{}, err
	}
	return domain.OnChainInfo{ContractAddress: null.StringFrom(normalizeAddress(addr))}, nil
}

// pickPlatform prefers ethereum, then the alphabetically first chain with a
// non-empty address.
func pickPlatform(platforms map[string]string) (string, string) {
	if addr := strings.TrimSpace(platforms[preferredChain]); addr != "" {
		return preferredChain, addr
	}
	chains := make([]string, 0, len(platforms))
	for chain := range platforms {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		if addr := strings.TrimSpace(platforms[chain]); addr != "" {
			return chain, addr
		}
	}
	return "", ""
}

// normalizeAddress applies the EIP-55 checksum to EVM addresses and leaves
// anything else untouched.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
