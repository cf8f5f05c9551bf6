package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"blockminds/internal/domain"

	"github.com/guregu/null/v6"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeSnapshots struct {
	records []domain.PublishedRecord
	run     *domain.RunReport
}

func (f *fakeSnapshots) FindAsset(ctx context.Context, query string) (domain.PublishedRecord, error) {
	for _, r := range f.records {
		if r.AssetID == query || strings.EqualFold(r.Symbol, query) {
			return r, nil
		}
	}
	return domain.PublishedRecord{}, fmt.Errorf("asset %q: %w", query, domain.ErrNotFound)
}

func (f *fakeSnapshots) Top(ctx context.Context, n int) ([]domain.PublishedRecord, error) {
	if n < len(f.records) {
		return f.records[:n], nil
	}
	return f.records, nil
}

func (f *fakeSnapshots) LatestRun(ctx context.Context) (domain.RunReport, error) {
	if f.run == nil {
		return domain.RunReport{}, domain.ErrNotFound
	}
	return *f.run, nil
}

func connect(t *testing.T, snaps SnapshotReader) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := New(snaps, "test")
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("call %s returned no content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("call %s returned %T", name, res.Content[0])
	}
	return text.Text, res.IsError
}

func sample() *fakeSnapshots {
	return &fakeSnapshots{records: []domain.PublishedRecord{
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: null.IntFrom(1), CurrentPrice: null.FloatFrom(64000)},
		{AssetID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: null.IntFrom(2)},
	}}
}

func TestToolsListed(t *testing.T) {
	session := connect(t, sample())
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_snapshot", "get_asset", "latest_run"} {
		if !names[want] {
			t.Fatalf("tool %s not registered", want)
		}
	}
}

func TestListSnapshotTool(t *testing.T) {
	session := connect(t, sample())
	text, isErr := callText(t, session, "list_snapshot", map[string]any{"top": 1})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var out []assetSummary
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].AssetID != "bitcoin" || out[0].Price == nil || *out[0].Price != 64000 {
		t.Fatalf("unexpected summary %+v", out)
	}
	if out[0].RSI14 != nil {
		t.Fatal("missing indicator should be null")
	}
}

func TestGetAssetTool(t *testing.T) {
	session := connect(t, sample())
	text, isErr := callText(t, session, "get_asset", map[string]any{"query": "ETH"})
	if isErr || !strings.Contains(text, `"asset_id": "ethereum"`) {
		t.Fatalf("unexpected result (error=%v): %s", isErr, text)
	}
	text, isErr = callText(t, session, "get_asset", map[string]any{"query": "doge"})
	if !isErr || !strings.Contains(text, "not in the published snapshot") {
		t.Fatalf("expected tool error, got %s", text)
	}
}

func TestLatestRunTool(t *testing.T) {
	snaps := sample()
	session := connect(t, snaps)
	if _, isErr := callText(t, session, "latest_run", map[string]any{}); !isErr {
		t.Fatal("expected tool error without runs")
	}
	snaps.run = &domain.RunReport{RunID: "r1", Status: domain.RunIncomplete}
	text, isErr := callText(t, session, "latest_run", map[string]any{})
	if isErr || !strings.Contains(text, `"status": "incomplete"`) {
		t.Fatalf("unexpected result: %s", text)
	}
}
