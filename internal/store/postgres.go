package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

// PostgresStore keeps documents as JSONB next to the columns used for
// lookups and ordering. The schema comes from db.EnsureSchema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order model.Order, first model.OrderStatus) error {
	first.Links = nil
	order = stripOrderLinks(order)
	order.Properties.Status = first

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	statusDoc, err := json.Marshal(first)
	if err != nil {
		return fmt.Errorf("failed to encode order status: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO orders (id, product_id, document, status) VALUES ($1, $2, $3, $4)`,
		order.ID, order.Properties.ProductID, string(doc), string(statusDoc),
	); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO order_statuses (order_id, status_code, document, recorded_at) VALUES ($1, $2, $3, $4)`,
		order.ID, string(first.StatusCode), string(statusDoc), first.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert order status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var doc, statusDoc []byte
	if err := row.Scan(&doc, &statusDoc); err != nil {
		return model.Order{}, err
	}
	var o model.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return model.Order{}, fmt.Errorf("failed to decode order: %w", err)
	}
	if err := json.Unmarshal(statusDoc, &o.Properties.Status); err != nil {
		return model.Order{}, fmt.Errorf("failed to decode order status: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT document, status FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, apperr.NotFound("order", id)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// cursorSeq resolves a token to the seq column of table.
func (s *PostgresStore) cursorSeq(ctx context.Context, table, next string) (int64, error) {
	if next == "" {
		return 0, nil
	}
	id, err := pagination.DecodeToken(next)
	if err != nil {
		return 0, err
	}
	var seq int64
	err = s.pool.QueryRow(ctx, `SELECT seq FROM `+table+` WHERE id = $1`, id).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("pagination token", next)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve cursor: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, next string, limit int) ([]model.Order, string, error) {
	seq, err := s.cursorSeq(ctx, "orders", next)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.Order{}, "", nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT document, status FROM orders WHERE seq >= $1 ORDER BY seq LIMIT $2`, seq, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list orders: %w", err)
	}
	page, token := trimPage(out, limit, func(o model.Order) string { return o.ID })
	return page, token, nil
}

func (s *PostgresStore) AppendOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (model.OrderStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock serializes appends on the same order.
	var lastDoc []byte
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&lastDoc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.OrderStatus{}, apperr.NotFound("order", orderID)
	}
	if err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to lock order: %w", err)
	}
	var last model.OrderStatus
	if err := json.Unmarshal(lastDoc, &last); err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to decode order status: %w", err)
	}
	if status.Timestamp.Before(last.Timestamp) {
		status.Timestamp = last.Timestamp
	}
	status.Links = nil

	doc, err := json.Marshal(status)
	if err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to encode order status: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO order_statuses (order_id, status_code, document, recorded_at) VALUES ($1, $2, $3, $4)`,
		orderID, string(status.StatusCode), string(doc), status.Timestamp,
	); err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to insert order status: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(doc)); err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to refresh order status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.OrderStatus{}, fmt.Errorf("failed to commit order status: %w", err)
	}
	return status, nil
}

type statusRow struct {
	id     int64
	status model.OrderStatus
}

func (s *PostgresStore) ListOrderStatuses(ctx context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, "", fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return nil, "", apperr.NotFound("order", orderID)
	}

	var from int64
	if next != "" {
		key, err := pagination.DecodeToken(next)
		if err != nil {
			return nil, "", err
		}
		from, err = strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, "", apperr.NotFound("pagination token", next)
		}
		var ok bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM order_statuses WHERE id = $1 AND order_id = $2)`, from, orderID,
		).Scan(&ok); err != nil {
			return nil, "", fmt.Errorf("failed to resolve cursor: %w", err)
		}
		if !ok {
			return nil, "", apperr.NotFound("pagination token", next)
		}
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.OrderStatus{}, "", nil
	}

	rows, err := s.pool.Query(ctx, `
        SELECT id, document FROM order_statuses
        WHERE order_id = $1 AND ($2::bigint = 0 OR id <= $2::bigint)
        ORDER BY id DESC
        LIMIT $3`, orderID, from, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list order statuses: %w", err)
	}
	defer rows.Close()

	var found []statusRow
	for rows.Next() {
		var r statusRow
		var doc []byte
		if err := rows.Scan(&r.id, &doc); err != nil {
			return nil, "", fmt.Errorf("failed to scan order status: %w", err)
		}
		if err := json.Unmarshal(doc, &r.status); err != nil {
			return nil, "", fmt.Errorf("failed to decode order status: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list order statuses: %w", err)
	}

	page, token := trimPage(found, limit, func(r statusRow) string { return strconv.FormatInt(r.id, 10) })
	out := make([]model.OrderStatus, len(page))
	for i, r := range page {
		out[i] = r.status
	}
	return out, token, nil
}

func (s *PostgresStore) PutSearchRecord(ctx context.Context, rec model.OpportunitySearchRecord) error {
	return putSearchRecord(ctx, s.pool, stripRecordLinks(rec))
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putSearchRecord(ctx context.Context, db execer, rec model.OpportunitySearchRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode search record: %w", err)
	}
	var collectionID *string
	if rec.CollectionID != "" {
		collectionID = &rec.CollectionID
	}
	if _, err := db.Exec(ctx, `
        INSERT INTO opportunity_search_records (id, product_id, collection_id, document)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET collection_id = EXCLUDED.collection_id, document = EXCLUDED.document, updated_at = NOW()`,
		rec.ID, rec.ProductID, collectionID, string(doc),
	); err != nil {
		return fmt.Errorf("failed to store search record: %w", err)
	}
	return nil
}

func scanSearchRecord(row pgx.Row) (model.OpportunitySearchRecord, error) {
	var doc []byte
	var collectionID *string
	if err := row.Scan(&doc, &collectionID); err != nil {
		return model.OpportunitySearchRecord{}, err
	}
	var rec model.OpportunitySearchRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to decode search record: %w", err)
	}
	if collectionID != nil {
		rec.CollectionID = *collectionID
	}
	return rec, nil
}

func (s *PostgresStore) GetSearchRecord(ctx context.Context, id string) (model.OpportunitySearchRecord, error) {
	rec, err := scanSearchRecord(s.pool.QueryRow(ctx,
		`SELECT document, collection_id FROM opportunity_search_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.OpportunitySearchRecord{}, apperr.NotFound("opportunity search record", id)
	}
	if err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to get search record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) UpdateSearchRecord(ctx context.Context, id string, fn func(*model.OpportunitySearchRecord) error) (model.OpportunitySearchRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := scanSearchRecord(tx.QueryRow(ctx,
		`SELECT document, collection_id FROM opportunity_search_records WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.OpportunitySearchRecord{}, apperr.NotFound("opportunity search record", id)
	}
	if err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to lock search record: %w", err)
	}
	if err := fn(&rec); err != nil {
		return model.OpportunitySearchRecord{}, err
	}
	rec = stripRecordLinks(rec)
	if err := putSearchRecord(ctx, tx, rec); err != nil {
		return model.OpportunitySearchRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("failed to commit search record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListSearchRecords(ctx context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error) {
	seq, err := s.cursorSeq(ctx, "opportunity_search_records", next)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)
	if limit == 0 {
		return []model.OpportunitySearchRecord{}, "", nil
	}

	rows, err := s.pool.Query(ctx, `
        SELECT document, collection_id FROM opportunity_search_records
        WHERE seq >= $1 ORDER BY seq LIMIT $2`, seq, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list search records: %w", err)
	}
	defer rows.Close()

	var out []model.OpportunitySearchRecord
	for rows.Next() {
		rec, err := scanSearchRecord(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list search records: %w", err)
	}
	page, token := trimPage(out, limit, func(r model.OpportunitySearchRecord) string { return r.ID })
	return page, token, nil
}

func (s *PostgresStore) PutOpportunityCollection(ctx context.Context, c model.OpportunityCollection) error {
	c.Links = nil
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode opportunity collection: %w", err)
	}
	var request *string
	if c.Request != nil {
		b, err := json.Marshal(c.Request)
		if err != nil {
			return fmt.Errorf("failed to encode opportunity request: %w", err)
		}
		r := string(b)
		request = &r
	}
	var recordID *string
	if c.SearchRecordID != "" {
		recordID = &c.SearchRecordID
	}
	if _, err := s.pool.Exec(ctx, `
        INSERT INTO opportunity_collections (id, product_id, search_record_id, request, document)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE
        SET search_record_id = EXCLUDED.search_record_id, request = EXCLUDED.request, document = EXCLUDED.document`,
		c.ID, c.ProductID, recordID, request, string(doc),
	); err != nil {
		return fmt.Errorf("failed to store opportunity collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOpportunityCollection(ctx context.Context, id string) (model.OpportunityCollection, error) {
	var productID string
	var recordID *string
	var request, doc []byte
	err := s.pool.QueryRow(ctx, `
        SELECT product_id, search_record_id, request, document
        FROM opportunity_collections WHERE id = $1`, id,
	).Scan(&productID, &recordID, &request, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.OpportunityCollection{}, apperr.NotFound("opportunity collection", id)
	}
	if err != nil {
		return model.OpportunityCollection{}, fmt.Errorf("failed to get opportunity collection: %w", err)
	}

	var c model.OpportunityCollection
	if err := json.Unmarshal(doc, &c); err != nil {
		return model.OpportunityCollection{}, fmt.Errorf("failed to decode opportunity collection: %w", err)
	}
	c.ProductID = productID
	if recordID != nil {
		c.SearchRecordID = *recordID
	}
	if len(request) > 0 {
		var p model.OpportunityPayload
		if err := json.Unmarshal(request, &p); err != nil {
			return model.OpportunityCollection{}, fmt.Errorf("failed to decode opportunity request: %w", err)
		}
		c.Request = &p
	}
	return c, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
