package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

const (
	maxUpdateRetries = 5
	maxAppendRetries = 64
)

// firstStatusSeq numbers the status stored with a new order. Later entries
// count up from it per order.
const firstStatusSeq int64 = 1

// MongoStore keeps each resource as an encoded JSON document plus the fields
// needed for lookups. Orders and search records are listed in the order of
// counters kept in the "counters" collection. Status history is numbered per
// order.
type MongoStore struct {
	client      *mongo.Client
	orders      *mongo.Collection
	statuses    *mongo.Collection
	records     *mongo.Collection
	collections *mongo.Collection
	counters    *mongo.Collection
}

type orderDoc struct {
	ID        string `bson:"_id"`
	Seq       int64  `bson:"seq"`
	ProductID string `bson:"product_id"`
	Document  []byte `bson:"document"`
	Status    []byte `bson:"status"`
	StatusSeq int64  `bson:"status_seq"`
}

type statusDoc struct {
	OrderID  string `bson:"order_id"`
	Seq      int64  `bson:"seq"`
	Document []byte `bson:"document"`
}

type recordDoc struct {
	ID           string `bson:"_id"`
	Seq          int64  `bson:"seq"`
	Version      int64  `bson:"version"`
	ProductID    string `bson:"product_id"`
	CollectionID string `bson:"collection_id,omitempty"`
	Document     []byte `bson:"document"`
}

type collectionDoc struct {
	ID             string `bson:"_id"`
	ProductID      string `bson:"product_id"`
	SearchRecordID string `bson:"search_record_id,omitempty"`
	Request        []byte `bson:"request,omitempty"`
	Document       []byte `bson:"document"`
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:      client,
		orders:      db.Collection("orders"),
		statuses:    db.Collection("order_statuses"),
		records:     db.Collection("opportunity_search_records"),
		collections: db.Collection("opportunity_collections"),
		counters:    db.Collection("counters"),
	}
}

// EnsureIndexes creates the indexes used for paging.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to index orders: %w", err)
	}
	if _, err := s.statuses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "seq", Value: -1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to index order statuses: %w", err)
	}
	if _, err := s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to index search records: %w", err)
	}
	return nil
}

func (s *MongoStore) nextSeq(ctx context.Context, name string) (int64, error) {
	var c struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s sequence: %w", name, err)
	}
	return c.Value, nil
}

// CreateOrder writes the first status before the order so a reader that can
// see the order always sees a status too.
func (s *MongoStore) CreateOrder(ctx context.Context, order model.Order, first model.OrderStatus) error {
	first.Links = nil
	order = stripOrderLinks(order)
	order.Properties.Status = first

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	stDoc, err := json.Marshal(first)
	if err != nil {
		return fmt.Errorf("failed to encode order status: %w", err)
	}

	orderSeq, err := s.nextSeq(ctx, "orders")
	if err != nil {
		return err
	}
	statusSeq := firstStatusSeq

	if _, err := s.statuses.InsertOne(ctx, statusDoc{OrderID: order.ID, Seq: statusSeq, Document: stDoc}); err != nil {
		return fmt.Errorf("failed to insert order status: %w", err)
	}
	_, err = s.orders.InsertOne(ctx, orderDoc{
		ID:        order.ID,
		Seq:       orderSeq,
		ProductID: order.Properties.ProductID,
		Document:  doc,
		Status:    stDoc,
		StatusSeq: statusSeq,
	})
	if err != nil {
		_, _ = s.statuses.DeleteOne(ctx, bson.M{"order_id": order.ID, "seq": statusSeq})
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func decodeOrder(d orderDoc) (model.Order, error) {
	var o model.Order
	if err := json.Unmarshal(d.Document, &o); err != nil {
		return model.Order{}, fmt.Errorf("failed to decode order: %w", err)
	}
	if err := json.Unmarshal(d.Status, &o.Properties.Status); err != nil {
		return model.Order{}, fmt.Errorf("failed to decode order status: %w", err)
	}
	return o, nil
}

func (s *MongoStore) findOrder(ctx context.Context, id string) (orderDoc, error) {
	var d orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orderDoc{}, apperr.NotFound("order", id)
	}
	if err != nil {
		return orderDoc{}, fmt.Errorf("failed to get order: %w", err)
	}
	return d, nil
}

func (s *MongoStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	d, err := s.findOrder(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	return decodeOrder(d)
}

// cursorSeq resolves a token naming a document id to that document's seq.
func cursorSeq(ctx context.Context, coll *mongo.Collection, next string) (int64, error) {
	if next == "" {
		return 0, nil
	}
	id, err := pagination.DecodeToken(next)
	if err != nil {
		return 0, err
	}
	var d struct {
		Seq int64 `bson:"seq"`
	}
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperr.NotFound("pagination token", next)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve cursor: %w", err)
	}
	return d.Seq, nil
}

func (s *MongoStore) ListOrders(ctx context.Context, next string, limit int) ([]model.Order, string, error) {
	seq, err := cursorSeq(ctx, s.orders, next)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.Order{}, "", nil
	}

	cur, err := s.orders.Find(ctx, bson.M{"seq": bson.M{"$gte": seq}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetLimit(int64(limit+1)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to list orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", fmt.Errorf("failed to decode orders: %w", err)
	}

	out := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		o, err := decodeOrder(d)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	page, token := trimPage(out, limit, func(o model.Order) string { return o.ID })
	return page, token, nil
}

// latestStatus returns the newest history entry of an order.
func (s *MongoStore) latestStatus(ctx context.Context, orderID string) (statusDoc, error) {
	var d statusDoc
	err := s.statuses.FindOne(ctx, bson.M{"order_id": orderID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return statusDoc{}, apperr.NotFound("order", orderID)
	}
	if err != nil {
		return statusDoc{}, fmt.Errorf("failed to get latest order status: %w", err)
	}
	return d, nil
}

// AppendOrderStatus claims the next per-order seq by inserting into the
// unique (order_id, seq) index. A concurrent writer that took the same seq
// makes the insert fail, and the append is redone against the new latest
// entry, so timestamps never decrease along the history. The order's current
// status only moves forward.
func (s *MongoStore) AppendOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (model.OrderStatus, error) {
	if _, err := s.findOrder(ctx, orderID); err != nil {
		return model.OrderStatus{}, err
	}
	status.Links = nil
	requested := status.Timestamp

	for range maxAppendRetries {
		last, err := s.latestStatus(ctx, orderID)
		if err != nil {
			return model.OrderStatus{}, err
		}
		var prev model.OrderStatus
		if err := json.Unmarshal(last.Document, &prev); err != nil {
			return model.OrderStatus{}, fmt.Errorf("failed to decode order status: %w", err)
		}
		status.Timestamp = requested
		if requested.Before(prev.Timestamp) {
			status.Timestamp = prev.Timestamp
		}

		doc, err := json.Marshal(status)
		if err != nil {
			return model.OrderStatus{}, fmt.Errorf("failed to encode order status: %w", err)
		}
		seq := last.Seq + 1
		_, err = s.statuses.InsertOne(ctx, statusDoc{OrderID: orderID, Seq: seq, Document: doc})
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		if err != nil {
			return model.OrderStatus{}, fmt.Errorf("failed to insert order status: %w", err)
		}

		if _, err := s.orders.UpdateOne(ctx,
			bson.M{"_id": orderID, "status_seq": bson.M{"$lt": seq}},
			bson.M{"$set": bson.M{"status": doc, "status_seq": seq}},
		); err != nil {
			return model.OrderStatus{}, fmt.Errorf("failed to refresh order status: %w", err)
		}
		return status, nil
	}
	return model.OrderStatus{}, fmt.Errorf("failed to append order status to %s: too many concurrent writers", orderID)
}

func (s *MongoStore) ListOrderStatuses(ctx context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error) {
	if _, err := s.findOrder(ctx, orderID); err != nil {
		return nil, "", err
	}

	filter := bson.M{"order_id": orderID}
	if next != "" {
		key, err := pagination.DecodeToken(next)
		if err != nil {
			return nil, "", err
		}
		from, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, "", apperr.NotFound("pagination token", next)
		}
		n, err := s.statuses.CountDocuments(ctx, bson.M{"order_id": orderID, "seq": from})
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve cursor: %w", err)
		}
		if n == 0 {
			return nil, "", apperr.NotFound("pagination token", next)
		}
		filter["seq"] = bson.M{"$lte": from}
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.OrderStatus{}, "", nil
	}

	cur, err := s.statuses.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit+1)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to list order statuses: %w", err)
	}
	var docs []statusDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", fmt.Errorf("failed to decode order statuses: %w", err)
	}

	page, token := trimPage(docs, limit, func(d statusDoc) string { return strconv.FormatInt(d.Seq, 10) })
	out := make([]model.OrderStatus, len(page))
	for i, d := range page {
		if err := json.Unmarshal(d.Document, &out[i]); err != nil {
			return nil, "", fmt.Errorf("failed to decode order status: %w", err)
		}
	}
	return out, token, nil
}

func encodeRecord(rec model.OpportunitySearchRecord, seq, version int64) (recordDoc, error) {
	rec = stripRecordLinks(rec)
	doc, err := json.Marshal(rec)
	if err != nil {
		return recordDoc{}, fmt.Errorf("failed to encode search record: %w", err)
	}
	return recordDoc{
		ID:           rec.ID,
		Seq:          seq,
		Version:      version,
		ProductID:    rec.ProductID,
		CollectionID: rec.CollectionID,
		Document:     doc,
	}, nil
}

func decodeRecord(d recordDoc) (model.OpportunitySearchRecord, error) {
	var rec model.OpportunitySearchRecord
	if err := json.Unmarshal(d.Document, &rec); err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to decode search record: %w", err)
	}
	rec.CollectionID = d.CollectionID
	return rec, nil
}

func (s *MongoStore) findRecord(ctx context.Context, id string) (recordDoc, error) {
	var d recordDoc
	err := s.records.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return recordDoc{}, apperr.NotFound("opportunity search record", id)
	}
	if err != nil {
		return recordDoc{}, fmt.Errorf("failed to get search record: %w", err)
	}
	return d, nil
}

func (s *MongoStore) PutSearchRecord(ctx context.Context, rec model.OpportunitySearchRecord) error {
	existing, err := s.findRecord(ctx, rec.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		seq, err := s.nextSeq(ctx, "opportunity_search_records")
		if err != nil {
			return err
		}
		d, err := encodeRecord(rec, seq, 1)
		if err != nil {
			return err
		}
		if _, err := s.records.InsertOne(ctx, d); err != nil {
			return fmt.Errorf("failed to insert search record: %w", err)
		}
		return nil
	case err != nil:
		return err
	}

	d, err := encodeRecord(rec, existing.Seq, existing.Version+1)
	if err != nil {
		return err
	}
	if _, err := s.records.ReplaceOne(ctx, bson.M{"_id": rec.ID}, d); err != nil {
		return fmt.Errorf("failed to replace search record: %w", err)
	}
	return nil
}

func (s *MongoStore) GetSearchRecord(ctx context.Context, id string) (model.OpportunitySearchRecord, error) {
	d, err := s.findRecord(ctx, id)
	if err != nil {
		return model.OpportunitySearchRecord{}, err
	}
	return decodeRecord(d)
}

// UpdateSearchRecord is an optimistic read-modify-write on the version field.
func (s *MongoStore) UpdateSearchRecord(ctx context.Context, id string, fn func(*model.OpportunitySearchRecord) error) (model.OpportunitySearchRecord, error) {
	for range maxUpdateRetries {
		d, err := s.findRecord(ctx, id)
		if err != nil {
			return model.OpportunitySearchRecord{}, err
		}
		rec, err := decodeRecord(d)
		if err != nil {
			return model.OpportunitySearchRecord{}, err
		}
		if err := fn(&rec); err != nil {
			return model.OpportunitySearchRecord{}, err
		}
		nd, err := encodeRecord(rec, d.Seq, d.Version+1)
		if err != nil {
			return model.OpportunitySearchRecord{}, err
		}
		res, err := s.records.ReplaceOne(ctx, bson.M{"_id": id, "version": d.Version}, nd)
		if err != nil {
			return model.OpportunitySearchRecord{}, fmt.Errorf("failed to update search record: %w", err)
		}
		if res.MatchedCount == 1 {
			return stripRecordLinks(rec), nil
		}
	}
	return model.OpportunitySearchRecord{}, fmt.Errorf("search record %s: too many concurrent updates", id)
}

func (s *MongoStore) ListSearchRecords(ctx context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error) {
	seq, err := cursorSeq(ctx, s.records, next)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.OpportunitySearchRecord{}, "", nil
	}

	cur, err := s.records.Find(ctx, bson.M{"seq": bson.M{"$gte": seq}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetLimit(int64(limit+1)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to list search records: %w", err)
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", fmt.Errorf("failed to decode search records: %w", err)
	}

	out := make([]model.OpportunitySearchRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeRecord(d)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	page, token := trimPage(out, limit, func(r model.OpportunitySearchRecord) string { return r.ID })
	return page, token, nil
}

func (s *MongoStore) PutOpportunityCollection(ctx context.Context, c model.OpportunityCollection) error {
	c.Links = nil
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode opportunity collection: %w", err)
	}
	d := collectionDoc{ID: c.ID, ProductID: c.ProductID, SearchRecordID: c.SearchRecordID, Document: doc}
	if c.Request != nil {
		if d.Request, err = json.Marshal(c.Request); err != nil {
			return fmt.Errorf("failed to encode opportunity request: %w", err)
		}
	}
	if _, err := s.collections.ReplaceOne(ctx, bson.M{"_id": c.ID}, d, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to store opportunity collection: %w", err)
	}
	return nil
}

func (s *MongoStore) GetOpportunityCollection(ctx context.Context, id string) (model.OpportunityCollection, error) {
	var d collectionDoc
	err := s.collections.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.OpportunityCollection{}, apperr.NotFound("opportunity collection", id)
	}
	if err != nil {
		return model.OpportunityCollection{}, fmt.Errorf("failed to get opportunity collection: %w", err)
	}

	var c model.OpportunityCollection
	if err := json.Unmarshal(d.Document, &c); err != nil {
		return model.OpportunityCollection{}, fmt.Errorf("failed to decode opportunity collection: %w", err)
	}
	c.ProductID = d.ProductID
	c.SearchRecordID = d.SearchRecordID
	if len(d.Request) > 0 {
		var p model.OpportunityPayload
		if err := json.Unmarshal(d.Request, &p); err != nil {
			return model.OpportunityCollection{}, fmt.Errorf("failed to decode opportunity request: %w", err)
		}
		c.Request = &p
	}
	return c, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
