package domain

import (
	"regexp"
	"strings"
)

// AssetRef is one member of a run's asset universe. ID is the join key for
// every downstream record; Name is what social and news sources are queried with.
type AssetRef struct {
	ID     string `json:"asset_id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// CatalogEntry is one row of the upstream asset catalog.
type CatalogEntry struct {
	ID      string `json:"asset_id"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	NameKey string `json:"name_key"`
}

// PortfolioEntry is a holding as entered by a user. AssetID, when set, is
// authoritative and skips catalog name resolution.
type PortfolioEntry struct {
	CoinName string `json:"coin_name"`
	AssetID  string `json:"asset_id,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// NormalizeName produces the catalog lookup key for a human readable coin name.
func NormalizeName(name string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(name), " "))
}

// NewCatalogEntry fills NameKey from Name.
func NewCatalogEntry(id, symbol, name string) CatalogEntry {
	return CatalogEntry{
		ID:      strings.TrimSpace(id),
		Symbol:  strings.ToLower(strings.TrimSpace(symbol)),
		Name:    strings.TrimSpace(name),
		NameKey: NormalizeName(name),
	}
}
