package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_product":     `INSERT INTO products (id, ean, name, brand, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_status":      `UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_product":        `SELECT id, ean, name, brand, status, classification, search_results, enriched, validation, log, error, created_at, updated_at FROM products WHERE id = $1`,
	"upsert_page":        `INSERT INTO scraped_pages (id, product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (product_id, url) DO UPDATE SET source_tier = $4, markdown = $5, success = $6, extracted = $7, gap_filled = $8, scraped_at = $9`,
	"list_pages":         `SELECT product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at FROM scraped_pages WHERE product_id = $1 ORDER BY scraped_at ASC`,
	"get_brand_origin":   `SELECT brand, country, tier, source_url, updated_at FROM brand_origins WHERE brand = $1`,
	"upsert_brand_origin": `INSERT INTO brand_origins (brand, country, tier, source_url, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (brand) DO UPDATE SET country = $2, tier = $3, source_url = $4, updated_at = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	ean            TEXT NOT NULL,
	name           TEXT NOT NULL,
	brand          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	classification JSONB,
	search_results JSONB,
	enriched       JSONB,
	validation     JSONB,
	log            JSONB,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scraped_pages (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id  TEXT NOT NULL REFERENCES products(id),
	url         TEXT NOT NULL,
	source_tier TEXT NOT NULL DEFAULT 'third_party',
	markdown    TEXT NOT NULL DEFAULT '',
	success     BOOLEAN NOT NULL DEFAULT false,
	extracted   BOOLEAN NOT NULL DEFAULT false,
	gap_filled  BOOLEAN NOT NULL DEFAULT false,
	scraped_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(product_id, url)
);

CREATE TABLE IF NOT EXISTS brand_origins (
	brand      TEXT PRIMARY KEY,
	country    TEXT NOT NULL,
	tier       TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_ean ON products(ean);
CREATE INDEX IF NOT EXISTS idx_scraped_pages_product_id ON scraped_pages(product_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, ean, name, brand string) (*model.Product, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, ean, name, brand, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, ean, name, brand, string(model.StatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert product")
	}

	return &model.Product{
		ID:        id,
		EAN:       ean,
		Name:      name,
		Brand:     brand,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ImportProducts bulk-loads sparse records via a temp-table upsert keyed on id.
func (s *PostgresStore) ImportProducts(ctx context.Context, products []model.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, p.EAN, p.Name, p.Brand, string(model.StatusPending), now, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      []string{"id", "ean", "name", "brand", "status", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import products")
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, ean, name, brand, status, classification, search_results, enriched, validation, log, error, created_at, updated_at
		 FROM products WHERE id = $1`,
		productID,
	)
	p, err := scanProductPG(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", productID)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT id, ean, name, brand, status, classification, search_results, enriched, validation, log, error, created_at, updated_at
	          FROM products WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.EAN != "" {
		query += fmt.Sprintf(` AND ean = $%d`, argIdx)
		args = append(args, filter.EAN)
		argIdx++
	}
	if filter.Brand != "" {
		query += fmt.Sprintf(` AND lower(brand) = $%d`, argIdx)
		args = append(args, strings.ToLower(filter.Brand))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProductPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, productID string, status model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), productID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %s", productID)
	}
	return nil
}

// SaveProduct overwrites every stage result column from the in-memory record.
func (s *PostgresStore) SaveProduct(ctx context.Context, p *model.Product) error {
	classification, err := marshalNullable(p.Classification != nil, p.Classification, "classification")
	if err != nil {
		return err
	}
	searchResults, err := marshalNullable(p.SearchResults != nil, p.SearchResults, "search results")
	if err != nil {
		return err
	}
	enriched, err := marshalNullable(p.Enriched != nil, p.Enriched, "enriched")
	if err != nil {
		return err
	}
	validation, err := marshalNullable(p.Validation != nil, p.Validation, "validation")
	if err != nil {
		return err
	}
	logJSON, err := marshalNullable(p.Log != nil, p.Log, "log")
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET brand = $1, status = $2, classification = $3, search_results = $4,
		 enriched = $5, validation = $6, log = $7, error = $8, updated_at = $9
		 WHERE id = $10`,
		p.Brand, string(p.Status), classification, searchResults,
		enriched, validation, logJSON, p.Error, time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save product %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) UpsertScrapedPage(ctx context.Context, page *model.ScrapedPage) error {
	scrapedAt := page.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scraped_pages (id, product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (product_id, url) DO UPDATE SET
		   source_tier = $4, markdown = $5, success = $6, extracted = $7, gap_filled = $8, scraped_at = $9`,
		uuid.New().String(), page.ProductID, page.URL, string(page.SourceTier), page.Markdown,
		page.Success, page.Extracted, page.GapFilled, scrapedAt,
	)
	return eris.Wrapf(err, "postgres: upsert scraped page %s", page.URL)
}

func (s *PostgresStore) ListScrapedPages(ctx context.Context, productID string) ([]model.ScrapedPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at
		 FROM scraped_pages WHERE product_id = $1 ORDER BY scraped_at ASC`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scraped pages")
	}
	defer rows.Close()

	var pages []model.ScrapedPage
	for rows.Next() {
		var pg model.ScrapedPage
		var tier string
		if err := rows.Scan(&pg.ProductID, &pg.URL, &tier, &pg.Markdown, &pg.Success, &pg.Extracted, &pg.GapFilled, &pg.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scraped page")
		}
		pg.SourceTier = model.SourceTier(tier)
		pages = append(pages, pg)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: list scraped pages iterate")
}

func (s *PostgresStore) GetBrandOrigin(ctx context.Context, brand string) (*model.BrandOrigin, error) {
	var bo model.BrandOrigin
	var tier string

	err := s.pool.QueryRow(ctx,
		`SELECT brand, country, tier, source_url, updated_at FROM brand_origins WHERE brand = $1`,
		strings.ToLower(brand),
	).Scan(&bo.Brand, &bo.Country, &tier, &bo.SourceURL, &bo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get brand origin")
	}
	bo.Tier = model.Tier(tier)
	return &bo, nil
}

func (s *PostgresStore) UpsertBrandOrigin(ctx context.Context, origin model.BrandOrigin) error {
	updatedAt := origin.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO brand_origins (brand, country, tier, source_url, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (brand) DO UPDATE SET
		   country = $2, tier = $3, source_url = $4, updated_at = $5`,
		strings.ToLower(origin.Brand), origin.Country, string(origin.Tier), origin.SourceURL, updatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert brand origin %s", origin.Brand)
}

// marshalNullable JSON-encodes v when present is true, else returns nil so
// the column stays NULL.
func marshalNullable(present bool, v any, label string) ([]byte, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", label)
	}
	return data, nil
}

func scanProductPG(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var classification, searchResults, enriched, validation, logJSON []byte

	err := row.Scan(&p.ID, &p.EAN, &p.Name, &p.Brand, &p.Status,
		&classification, &searchResults, &enriched, &validation, &logJSON,
		&p.Error, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	decode := func(src []byte, dst any, label string) error {
		if len(src) == 0 {
			return nil
		}
		if err := json.Unmarshal(src, dst); err != nil {
			return eris.Wrapf(err, "store: unmarshal %s", label)
		}
		return nil
	}

	if len(classification) > 0 {
		p.Classification = &model.ProductClassification{}
		if err := decode(classification, p.Classification, "classification"); err != nil {
			return nil, err
		}
	}
	if err := decode(searchResults, &p.SearchResults, "search results"); err != nil {
		return nil, err
	}
	if len(enriched) > 0 {
		p.Enriched = &model.EnrichedProduct{}
		if err := decode(enriched, p.Enriched, "enriched"); err != nil {
			return nil, err
		}
	}
	if len(validation) > 0 {
		p.Validation = &model.ValidationReport{}
		if err := decode(validation, p.Validation, "validation"); err != nil {
			return nil, err
		}
	}
	if err := decode(logJSON, &p.Log, "log"); err != nil {
		return nil, err
	}
	return &p, nil
}
