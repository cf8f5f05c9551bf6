// Package mcpserver exposes the published snapshot as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"blockminds/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultListLimit = 50

type SnapshotReader interface {
	FindAsset(ctx context.Context, query string) (domain.PublishedRecord, error)
	Top(ctx context.Context, n int) ([]domain.PublishedRecord, error)
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

type ListSnapshotArgs struct {
	Top int `json:"top,omitempty" jsonschema:"number of best ranked assets to return, default 50"`
}

type GetAssetArgs struct {
	Query string `json:"query" jsonschema:"asset id, ticker symbol or coin name"`
}

type LatestRunArgs struct{}

// assetSummary is the compact per-asset view returned by list_snapshot.
type assetSummary struct {
	AssetID        string                `json:"asset_id"`
	Symbol         string                `json:"symbol"`
	Name           string                `json:"name"`
	Rank           *int64                `json:"market_cap_rank"`
	Price          *float64              `json:"current_price"`
	ChangePct24h   *float64              `json:"price_change_percentage_24h"`
	RSI14          *float64              `json:"rsi_14"`
	PredictedPrice *float64              `json:"predicted_price"`
	Sentiment      domain.SentimentLabel `json:"sentiment"`
}

// New builds a server with the list_snapshot, get_asset and latest_run tools.
func New(snapshots SnapshotReader, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "blockminds", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_snapshot",
		Description: "List the best ranked assets of the current published snapshot with price, RSI, prediction and sentiment.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListSnapshotArgs) (*mcp.CallToolResult, any, error) {
		n := args.Top
		if n <= 0 {
			n = defaultListLimit
		}
		records, err := snapshots.Top(ctx, n)
		if err != nil {
			return nil, nil, err
		}
		out := make([]assetSummary, 0, len(records))
		for _, r := range records {
			out = append(out, summarize(r))
		}
		return jsonResult(out)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_asset",
		Description: "Return the full published record for one asset, including indicators, sentiment and contract details.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetAssetArgs) (*mcp.CallToolResult, any, error) {
		rec, err := snapshots.FindAsset(ctx, args.Query)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("%q is not in the published snapshot", args.Query)
		}
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(rec)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "latest_run",
		Description: "Report the status of the most recent pipeline run, including failed and unresolved assets.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ LatestRunArgs) (*mcp.CallToolResult, any, error) {
		report, err := snapshots.LatestRun(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, errors.New("no pipeline run recorded yet")
		}
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(report)
	})

	return server
}

// Serve runs the server on stdio, or as streamable HTTP on addr.
func Serve(ctx context.Context, server *mcp.Server, transport, addr string) error {
	if transport != "http" {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.WithoutCancel(ctx))
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func summarize(r domain.PublishedRecord) assetSummary {
	return assetSummary{
		AssetID:        r.AssetID,
		Symbol:         r.Symbol,
		Name:           r.Name,
		Rank:           r.MarketCapRank.Ptr(),
		Price:          r.CurrentPrice.Ptr(),
		ChangePct24h:   r.PriceChangePct24h.Ptr(),
		RSI14:          r.RSI14.Ptr(),
		PredictedPrice: r.PredictedPrice.Ptr(),
		Sentiment:      r.Sentiment.Label,
	}
}
