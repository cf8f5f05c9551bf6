// Package mongo implements store.Store on MongoDB. Each snapshot is staged
// into its own collection and swapped in with renameCollection, which
// replaces the published collection in one step.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
)

const (
	publishedCollection = "published_records"
	stagingPrefix       = "staging_"
	catalogCollection   = "asset_catalog"
	portfolioCollection = "portfolio_assets"
	runsCollection      = "pipeline_runs"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	tracer trace.Tracer
}

var _ store.Store = (*Store)(nil)

// Connect dials uri and ensures the history and catalog indexes exist.
func Connect(ctx context.Context, uri, database string, tracer trace.Tracer) (*Store, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: mongo.uri is required", domain.ErrConfiguration)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database), tracer: tracer}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for _, window := range []domain.HistoryWindow{domain.WindowYearly, domain.WindowHourly} {
		_, err := s.db.Collection(historyCollection(window)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "asset_id", Value: 1}, {Key: "ts", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("index %s history: %w", window, err)
		}
	}
	_, err := s.db.Collection(catalogCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name_key", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("index catalog: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func stagingCollection(snapshotID string) string {
	return stagingPrefix + snapshotID
}

func (s *Store) Stage(ctx context.Context, snapshotID string, records []domain.PublishedRecord) error {
	ctx, span := s.tracer.Start(ctx, "mongo.stage")
	defer span.End()

	if len(records) == 0 {
		return nil
	}
	docs := make([]any, 0, len(records))
	for _, r := range records {
		doc, err := toDocument(r, r.AssetID)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.AssetID, err)
		}
		docs = append(docs, doc)
	}
	_, err := s.db.Collection(stagingCollection(snapshotID)).InsertMany(ctx, docs)
	return err
}

func (s *Store) Swap(ctx context.Context, snapshotID string, expected int) error {
	ctx, span := s.tracer.Start(ctx, "mongo.swap")
	defer span.End()

	staging := stagingCollection(snapshotID)
	staged, err := s.db.Collection(staging).CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("count staged records: %w", err)
	}
	if int(staged) != expected {
		return fmt.Errorf("swap %s: staged %d records, expected %d", snapshotID, staged, expected)
	}

	name := s.db.Name()
	cmd := bson.D{
		{Key: "renameCollection", Value: name + "." + staging},
		{Key: "to", Value: name + "." + publishedCollection},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("rename staged collection: %w", err)
	}
	return nil
}

func (s *Store) Discard(ctx context.Context, snapshotID string) error {
	return s.db.Collection(stagingCollection(snapshotID)).Drop(ctx)
}

func (s *Store) Current(ctx context.Context) ([]domain.PublishedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "mongo.current")
	defer span.End()

	cur, err := s.db.Collection(publishedCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.PublishedRecord, 0, len(docs))
	for _, doc := range docs {
		var r domain.PublishedRecord
		if err := fromDocument(doc, &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CurrentAsset(ctx context.Context, assetID string) (domain.PublishedRecord, error) {
	var doc bson.M
	err := s.db.Collection(publishedCollection).FindOne(ctx, bson.D{{Key: "_id", Value: assetID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PublishedRecord{}, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PublishedRecord{}, err
	}
	var r domain.PublishedRecord
	if err := fromDocument(doc, &r); err != nil {
		return domain.PublishedRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

type pricePointDocument struct {
	AssetID string    `bson:"asset_id"`
	Time    time.Time `bson:"ts"`
	Price   float64   `bson:"price"`
}

func historyCollection(window domain.HistoryWindow) string {
	return "price_history_" + string(window)
}

func (s *Store) SaveHistory(ctx context.Context, window domain.HistoryWindow, series domain.PriceSeries) error {
	ctx, span := s.tracer.Start(ctx, "mongo.save-history")
	defer span.End()

	if !window.Valid() {
		return fmt.Errorf("unknown history window %q", window)
	}
	coll := s.db.Collection(historyCollection(window))

	if window == domain.WindowHourly {
		if _, err := coll.DeleteMany(ctx, bson.D{{Key: "asset_id", Value: series.AssetID}}); err != nil {
			return fmt.Errorf("clear hourly history: %w", err)
		}
		if len(series.Points) == 0 {
			return nil
		}
		docs := make([]any, 0, len(series.Points))
		for _, p := range series.Points {
			docs = append(docs, pricePointDocument{AssetID: series.AssetID, Time: p.Time, Price: p.Price})
		}
		_, err := coll.InsertMany(ctx, docs)
		return err
	}

	if len(series.Points) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(series.Points))
	for _, p := range series.Points {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "asset_id", Value: series.AssetID}, {Key: "ts", Value: p.Time}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "price", Value: p.Price}}}}).
			SetUpsert(true))
	}
	_, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *Store) History(ctx context.Context, window domain.HistoryWindow, assetID string) (domain.PriceSeries, error) {
	if !window.Valid() {
		return domain.PriceSeries{}, fmt.Errorf("unknown history window %q", window)
	}
	cur, err := s.db.Collection(historyCollection(window)).Find(ctx,
		bson.D{{Key: "asset_id", Value: assetID}},
		options.Find().SetSort(bson.D{{Key: "ts", Value: 1}}))
	if err != nil {
		return domain.PriceSeries{}, err
	}
	var docs []pricePointDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domain.PriceSeries{}, err
	}
	points := make([]domain.PricePoint, 0, len(docs))
	for _, d := range docs {
		points = append(points, domain.PricePoint{Time: d.Time, Price: d.Price})
	}
	return domain.NewPriceSeries(assetID, points), nil
}

type catalogDocument struct {
	ID        string    `bson:"_id"`
	Symbol    string    `bson:"symbol"`
	Name      string    `bson:"name"`
	NameKey   string    `bson:"name_key"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d catalogDocument) entry() domain.CatalogEntry {
	return domain.CatalogEntry{ID: d.ID, Symbol: d.Symbol, Name: d.Name, NameKey: d.NameKey}
}

func (s *Store) UpsertCatalog(ctx context.Context, entries []domain.CatalogEntry) (int, error) {
	ctx, span := s.tracer.Start(ctx, "mongo.upsert-catalog")
	defer span.End()

	if len(entries) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: e.ID}}).
			SetReplacement(catalogDocument{ID: e.ID, Symbol: e.Symbol, Name: e.Name, NameKey: e.NameKey, UpdatedAt: now}).
			SetUpsert(true))
	}
	if _, err := s.db.Collection(catalogCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Store) CatalogByNameKey(ctx context.Context, nameKey string) ([]domain.CatalogEntry, error) {
	cur, err := s.db.Collection(catalogCollection).Find(ctx,
		bson.D{{Key: "name_key", Value: nameKey}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []catalogDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.CatalogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entry())
	}
	return out, nil
}

func (s *Store) CatalogByID(ctx context.Context, assetID string) (domain.CatalogEntry, error) {
	var d catalogDocument
	err := s.db.Collection(catalogCollection).FindOne(ctx, bson.D{{Key: "_id", Value: assetID}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CatalogEntry{}, fmt.Errorf("catalog %s: %w", assetID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	return d.entry(), nil
}

type portfolioDocument struct {
	CoinName string `bson:"coin_name"`
	AssetID  string `bson:"asset_id,omitempty"`
	Owner    string `bson:"owner,omitempty"`
}

func (s *Store) Portfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	cur, err := s.db.Collection(portfolioCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []portfolioDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.PortfolioEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.PortfolioEntry{CoinName: d.CoinName, AssetID: d.AssetID, Owner: d.Owner})
	}
	return out, nil
}

func (s *Store) SaveRun(ctx context.Context, report domain.RunReport) error {
	doc, err := toDocument(report, report.RunID)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	doc["started_at_sort"] = report.StartedAt.UTC()
	_, err = s.db.Collection(runsCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: report.RunID}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) LatestRun(ctx context.Context) (domain.RunReport, error) {
	var doc bson.M
	err := s.db.Collection(runsCollection).FindOne(ctx, bson.D{},
		options.FindOne().SetSort(bson.D{{Key: "started_at_sort", Value: -1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.RunReport{}, fmt.Errorf("latest run: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunReport{}, err
	}
	delete(doc, "started_at_sort")
	var report domain.RunReport
	if err := fromDocument(doc, &report); err != nil {
		return domain.RunReport{}, fmt.Errorf("decode run report: %w", err)
	}
	return report, nil
}

// toDocument converts v through its JSON form so stored documents carry the
// same field names and null markers as the API.
func toDocument(v any, id string) (bson.M, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = id
	return doc, nil
}

func fromDocument(doc bson.M, out any) error {
	delete(doc, "_id")
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
