package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blockminds/internal/domain"
	"blockminds/internal/store"
)

// Universe is the set of assets one run covers.
type Universe struct {
	Assets     []domain.AssetRef
	Unresolved []string
}

// IDs returns the asset ids in universe order.
func (u Universe) IDs() []string {
	out := make([]string, len(u.Assets))
	for i, a := range u.Assets {
		out[i] = a.ID
	}
	return out
}

// ResolveUniverse maps configured ids, or else the portfolio, to catalog
// assets. An explicit asset id always wins. A coin name resolves only on an
// exact name_key match with a single catalog entry; anything else is
// reported as unresolved and skipped.
func ResolveUniverse(ctx context.Context, universe store.UniverseStore, explicitIDs []string) (Universe, error) {
	var out Universe
	seen := make(map[string]struct{})
	add := func(ref domain.AssetRef) {
		if _, ok := seen[ref.ID]; ok {
			return
		}
		seen[ref.ID] = struct{}{}
		out.Assets = append(out.Assets, ref)
	}

	if len(explicitIDs) > 0 {
		for _, id := range explicitIDs {
			ref, err := refByID(ctx, universe, id, id)
			if err != nil {
				return Universe{}, err
			}
			add(ref)
		}
		return out, nil
	}

	entries, err := universe.Portfolio(ctx)
	if err != nil {
		return Universe{}, fmt.Errorf("read portfolio: %w", err)
	}
	for _, e := range entries {
		if id := strings.TrimSpace(e.AssetID); id != "" {
			ref, err := refByID(ctx, universe, id, e.CoinName)
			if err != nil {
				return Universe{}, err
			}
			add(ref)
			continue
		}

		key := domain.NormalizeName(e.CoinName)
		if key == "" {
			continue
		}
		matches, err := universe.CatalogByNameKey(ctx, key)
		if err != nil {
			return Universe{}, fmt.Errorf("catalog lookup %q: %w", key, err)
		}
		if len(matches) != 1 {
			out.Unresolved = append(out.Unresolved, e.CoinName)
			continue
		}
		m := matches[0]
		add(domain.AssetRef{ID: m.ID, Name: m.Name, Symbol: m.Symbol})
	}
	return out, nil
}

func refByID(ctx context.Context, universe store.UniverseStore, id, fallbackName string) (domain.AssetRef, error) {
	entry, err := universe.CatalogByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		name := strings.TrimSpace(fallbackName)
		if name == "" {
			name = id
		}
		return domain.AssetRef{ID: id, Name: name}, nil
	}
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("catalog lookup %s: %w", id, err)
	}
	return domain.AssetRef{ID: entry.ID, Name: entry.Name, Symbol: entry.Symbol}, nil
}
