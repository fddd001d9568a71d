package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	ean            TEXT NOT NULL,
	name           TEXT NOT NULL,
	brand          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	classification TEXT,
	search_results TEXT,
	enriched       TEXT,
	validation     TEXT,
	log            TEXT,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scraped_pages (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL REFERENCES products(id),
	url         TEXT NOT NULL,
	source_tier TEXT NOT NULL DEFAULT 'third_party',
	markdown    TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 0,
	extracted   INTEGER NOT NULL DEFAULT 0,
	gap_filled  INTEGER NOT NULL DEFAULT 0,
	scraped_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(product_id, url)
);

CREATE TABLE IF NOT EXISTS brand_origins (
	brand      TEXT PRIMARY KEY,
	country    TEXT NOT NULL,
	tier       TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_ean ON products(ean);
CREATE INDEX IF NOT EXISTS idx_scraped_pages_product_id ON scraped_pages(product_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, ean, name, brand string) (*model.Product, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, ean, name, brand, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ean, name, brand, string(model.StatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert product")
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

func (s *SQLiteStore) ImportProducts(ctx context.Context, products []model.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var n int64
	for _, p := range products {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, ean, name, brand, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, p.EAN, p.Name, p.Brand, string(model.StatusPending), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import product %s", p.EAN)
		}
		rows, _ := res.RowsAffected()
		n += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ean, name, brand, status, classification, search_results, enriched, validation, log, error, created_at, updated_at
		 FROM products WHERE id = ?`,
		productID,
	)
	return scanProduct(row)
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT id, ean, name, brand, status, classification, search_results, enriched, validation, log, error, created_at, updated_at
	          FROM products WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.EAN != "" {
		query += ` AND ean = ?`
		args = append(args, filter.EAN)
	}
	if filter.Brand != "" {
		query += ` AND lower(brand) = ?`
		args = append(args, strings.ToLower(filter.Brand))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, productID string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), productID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", productID)
	}
	return checkRowsAffected(res, "product", productID)
}

// SaveProduct overwrites every stage result column from the in-memory record.
func (s *SQLiteStore) SaveProduct(ctx context.Context, p *model.Product) error {
	cols, err := marshalProduct(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET brand = ?, status = ?, classification = ?, search_results = ?,
		 enriched = ?, validation = ?, log = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		p.Brand, string(p.Status), cols.classification, cols.searchResults,
		cols.enriched, cols.validation, cols.log, p.Error, time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save product %s", p.ID)
	}
	return checkRowsAffected(res, "product", p.ID)
}

func (s *SQLiteStore) UpsertScrapedPage(ctx context.Context, page *model.ScrapedPage) error {
	scrapedAt := page.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scraped_pages (id, product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(product_id, url) DO UPDATE SET
		   source_tier = excluded.source_tier, markdown = excluded.markdown, success = excluded.success,
		   extracted = excluded.extracted, gap_filled = excluded.gap_filled, scraped_at = excluded.scraped_at`,
		uuid.New().String(), page.ProductID, page.URL, string(page.SourceTier), page.Markdown,
		boolToInt(page.Success), boolToInt(page.Extracted), boolToInt(page.GapFilled), scrapedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert scraped page %s", page.URL)
}

func (s *SQLiteStore) ListScrapedPages(ctx context.Context, productID string) ([]model.ScrapedPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, url, source_tier, markdown, success, extracted, gap_filled, scraped_at
		 FROM scraped_pages WHERE product_id = ? ORDER BY scraped_at ASC`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scraped pages")
	}
	defer rows.Close()

	var pages []model.ScrapedPage
	for rows.Next() {
		var pg model.ScrapedPage
		var tier string
		var success, extracted, gapFilled int
		if err := rows.Scan(&pg.ProductID, &pg.URL, &tier, &pg.Markdown, &success, &extracted, &gapFilled, &pg.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scraped page")
		}
		pg.SourceTier = model.SourceTier(tier)
		pg.Success = success != 0
		pg.Extracted = extracted != 0
		pg.GapFilled = gapFilled != 0
		pages = append(pages, pg)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: list scraped pages iterate")
}

func (s *SQLiteStore) GetBrandOrigin(ctx context.Context, brand string) (*model.BrandOrigin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT brand, country, tier, source_url, updated_at FROM brand_origins WHERE brand = ?`,
		strings.ToLower(brand),
	)

	var bo model.BrandOrigin
	var tier string
	err := row.Scan(&bo.Brand, &bo.Country, &tier, &bo.SourceURL, &bo.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get brand origin")
	}
	bo.Tier = model.Tier(tier)
	return &bo, nil
}

func (s *SQLiteStore) UpsertBrandOrigin(ctx context.Context, origin model.BrandOrigin) error {
	updatedAt := origin.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brand_origins (brand, country, tier, source_url, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(brand) DO UPDATE SET
		   country = excluded.country, tier = excluded.tier, source_url = excluded.source_url, updated_at = excluded.updated_at`,
		strings.ToLower(origin.Brand), origin.Country, string(origin.Tier), origin.SourceURL, updatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert brand origin %s", origin.Brand)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

// productColumns holds the JSON-encoded stage result columns.
type productColumns struct {
	classification sql.NullString
	searchResults  sql.NullString
	enriched       sql.NullString
	validation     sql.NullString
	log            sql.NullString
}

func marshalProduct(p *model.Product) (*productColumns, error) {
	var cols productColumns

	set := func(dst *sql.NullString, v any, label string) error {
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrapf(err, "store: marshal %s", label)
		}
		*dst = sql.NullString{String: string(data), Valid: true}
		return nil
	}

	if p.Classification != nil {
		if err := set(&cols.classification, p.Classification, "classification"); err != nil {
			return nil, err
		}
	}
	if p.SearchResults != nil {
		if err := set(&cols.searchResults, p.SearchResults, "search results"); err != nil {
			return nil, err
		}
	}
	if p.Enriched != nil {
		if err := set(&cols.enriched, p.Enriched, "enriched"); err != nil {
			return nil, err
		}
	}
	if p.Validation != nil {
		if err := set(&cols.validation, p.Validation, "validation"); err != nil {
			return nil, err
		}
	}
	if p.Log != nil {
		if err := set(&cols.log, p.Log, "log"); err != nil {
			return nil, err
		}
	}
	return &cols, nil
}

func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var cols productColumns

	err := row.Scan(&p.ID, &p.EAN, &p.Name, &p.Brand, &p.Status,
		&cols.classification, &cols.searchResults, &cols.enriched, &cols.validation, &cols.log,
		&p.Error, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("product not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan product")
	}

	if err := unmarshalProduct(&p, &cols); err != nil {
		return nil, err
	}
	return &p, nil
}

func unmarshalProduct(p *model.Product, cols *productColumns) error {
	decode := func(src sql.NullString, dst any, label string) error {
		if !src.Valid || src.String == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(src.String), dst); err != nil {
			return eris.Wrapf(err, "store: unmarshal %s", label)
		}
		return nil
	}

	if cols.classification.Valid {
		p.Classification = &model.ProductClassification{}
		if err := decode(cols.classification, p.Classification, "classification"); err != nil {
			return err
		}
	}
	if err := decode(cols.searchResults, &p.SearchResults, "search results"); err != nil {
		return err
	}
	if cols.enriched.Valid {
		p.Enriched = &model.EnrichedProduct{}
		if err := decode(cols.enriched, p.Enriched, "enriched"); err != nil {
			return err
		}
	}
	if cols.validation.Valid {
		p.Validation = &model.ValidationReport{}
		if err := decode(cols.validation, p.Validation, "validation"); err != nil {
			return err
		}
	}
	return decode(cols.log, &p.Log, "log")
}
