package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"blockminds/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guregu/null/v6"
)

type fakeSnapshots struct {
	records []domain.PublishedRecord
	err     error
	loads   int
}

func (f *fakeSnapshots) Top(ctx context.Context, n int) ([]domain.PublishedRecord, error) {
	f.loads++
	return f.records, f.err
}

func (f *fakeSnapshots) LatestRun(ctx context.Context) (domain.RunReport, error) {
	return domain.RunReport{RunID: "r1", Status: domain.RunSucceeded}, nil
}

func sample() []domain.PublishedRecord {
	return []domain.PublishedRecord{
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: null.IntFrom(1), CurrentPrice: null.FloatFrom(64000)},
		{AssetID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: null.IntFrom(2)},
		{AssetID: "newcoin", Symbol: "new", Name: "New Coin"},
	}
}

func TestRowsFilterAndNulls(t *testing.T) {
	rows := Rows(sample(), "")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][3] != "64000.0000" || rows[1][3] != "-" || rows[2][0] != "-" {
		t.Fatalf("unexpected cells %v", rows)
	}
	filtered := Rows(sample(), "ETH")
	if len(filtered) != 1 || filtered[0][1] != "Ethereum" {
		t.Fatalf("unexpected filter result %v", filtered)
	}
}

func TestModelLoadAndRefresh(t *testing.T) {
	snaps := &fakeSnapshots{records: sample()}
	m := NewModel(snaps, "alice")

	msg := m.Init()()
	updated, _ := m.Update(msg)
	m = updated.(*Model)
	if m.loading || len(m.records) != 3 {
		t.Fatalf("expected loaded model, got %+v", m.records)
	}
	if view := m.View(); !strings.Contains(view, "run r1 succeeded") || !strings.Contains(view, "Bitcoin") {
		t.Fatalf("unexpected view:\n%s", view)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("refresh should return a load command")
	}
	cmd()
	if snaps.loads != 2 {
		t.Fatalf("expected second load, got %d", snaps.loads)
	}
}

func TestModelShowsLoadError(t *testing.T) {
	m := NewModel(&fakeSnapshots{err: errors.New("store offline")}, "")
	updated, _ := m.Update(m.Init()())
	if view := updated.View(); !strings.Contains(view, "store offline") {
		t.Fatalf("error not rendered:\n%s", view)
	}
}

func TestModelFilterMode(t *testing.T) {
	m := NewModel(&fakeSnapshots{records: sample()}, "")
	m.Update(m.Init()())
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("bit")})
	if rows := m.table.Rows(); len(rows) != 1 {
		t.Fatalf("expected filtered rows, got %d", len(rows))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.filtering || len(m.table.Rows()) != 3 {
		t.Fatal("esc should clear the filter")
	}
}
