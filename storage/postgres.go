package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"casas_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		url TEXT,
		title TEXT,
		city TEXT,
		city_normalized TEXT,
		zone TEXT,
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		area DOUBLE PRECISION,
		bedrooms INTEGER,
		bathrooms INTEGER,
		parking INTEGER,
		property_type TEXT,
		transaction_type TEXT,
		images TEXT[],
		description TEXT,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_city_normalized ON listings(city_normalized);
	CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen);

	CREATE TABLE IF NOT EXISTS canonical_listings (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		url TEXT,
		title TEXT,
		city TEXT,
		zone TEXT,
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		area DOUBLE PRECISION,
		bedrooms INTEGER,
		bathrooms INTEGER,
		parking INTEGER,
		property_type TEXT,
		transaction_type TEXT,
		images TEXT[],
		description TEXT,
		source_ids JSONB NOT NULL DEFAULT '[]',
		is_merged BOOLEAN NOT NULL DEFAULT FALSE,
		merged_at TIMESTAMPTZ,
		dedup_run_id TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_canonical_run ON canonical_listings(dedup_run_id);

	CREATE TABLE IF NOT EXISTS property_matches (
		id UUID PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		matched_source TEXT NOT NULL,
		matched_external_id TEXT NOT NULL,
		confidence REAL NOT NULL,
		match_reasons JSONB,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source, external_id, matched_source, matched_external_id)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id::text, source, external_id, COALESCE(url, ''), COALESCE(title, ''),
	COALESCE(city, ''), COALESCE(zone, ''), price, currency, area, bedrooms, bathrooms, parking,
	COALESCE(property_type, ''), COALESCE(transaction_type, ''), COALESCE(images, '{}'), description`

// ListingFilter narrows ListListings. Zero fields match everything.
type ListingFilter struct {
	Source string
	City   string // normalized city
	Since  time.Time
	Limit  int
}

func (f ListingFilter) IsZero() bool {
	return f.Source == "" && f.City == "" && f.Since.IsZero() && f.Limit == 0
}

// UpsertListing stores l keyed by (source, external_id). Attributes a rescrape
// no longer reports are kept. Returns true when the row did not exist before.
func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing, normalizedCity string) (bool, error) {
	query := `
		INSERT INTO listings (
			source, external_id, url, title, city, city_normalized, zone, price, currency,
			area, bedrooms, bathrooms, parking, property_type, transaction_type, images, description
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (source, external_id) DO UPDATE SET
			url = COALESCE(NULLIF(EXCLUDED.url, ''), listings.url),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), listings.title),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), listings.city),
			city_normalized = COALESCE(NULLIF(EXCLUDED.city_normalized, ''), listings.city_normalized),
			zone = COALESCE(NULLIF(EXCLUDED.zone, ''), listings.zone),
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			area = COALESCE(EXCLUDED.area, listings.area),
			bedrooms = COALESCE(EXCLUDED.bedrooms, listings.bedrooms),
			bathrooms = COALESCE(EXCLUDED.bathrooms, listings.bathrooms),
			parking = COALESCE(EXCLUDED.parking, listings.parking),
			property_type = COALESCE(NULLIF(EXCLUDED.property_type, ''), listings.property_type),
			transaction_type = COALESCE(NULLIF(EXCLUDED.transaction_type, ''), listings.transaction_type),
			images = COALESCE(EXCLUDED.images, listings.images),
			description = COALESCE(EXCLUDED.description, listings.description),
			last_seen = NOW(),
			updated_at = NOW()
		RETURNING id::text, (xmax = 0) AS inserted`

	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		l.Source, l.ExternalID, l.URL, l.Title, l.City, normalizedCity, l.Zone, l.Price, l.Currency,
		l.Area, l.Bedrooms, l.Bathrooms, l.Parking, l.PropertyType, l.TransactionType, l.Images, l.Description,
	).Scan(&l.ID, &inserted)
	return inserted, err
}

// ListListings returns stored listings in first-seen order.
func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.Source != "" {
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.City != "" {
		args = append(args, filter.City)
		where = append(where, fmt.Sprintf("city_normalized = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("last_seen >= $%d", len(args)))
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY first_seen, source, external_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryListings(ctx, query, args...)
}

// ListCandidates returns listings in normalizedCity from every source except
// excludeSource, most recently seen first.
func (s *PostgresStore) ListCandidates(ctx context.Context, normalizedCity, excludeSource string, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE city_normalized = $1 AND source <> $2
		ORDER BY last_seen DESC
		LIMIT $3`

	return s.queryListings(ctx, query, normalizedCity, excludeSource, limit)
}

func (s *PostgresStore) queryListings(ctx context.Context, query string, args ...any) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.Source, &l.ExternalID, &l.URL, &l.Title,
		&l.City, &l.Zone, &l.Price, &l.Currency, &l.Area, &l.Bedrooms, &l.Bathrooms, &l.Parking,
		&l.PropertyType, &l.TransactionType, &l.Images, &l.Description,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// =============================================================================
// Canonical Listings
// =============================================================================

// CanonicalKey is the canonical_listings primary key: the merged id for a
// merged listing, source:external_id for a listing with no duplicates.
func CanonicalKey(l *models.Listing) string {
	if l.IsMerged && l.ID != "" {
		return l.ID
	}
	return l.Source + ":" + l.ExternalID
}

// UpsertCanonicalListings writes the output of one dedup run in a single batch.
func (s *PostgresStore) UpsertCanonicalListings(ctx context.Context, runID string, listings []*models.Listing) error {
	query := `
		INSERT INTO canonical_listings (
			id, source, external_id, url, title, city, zone, price, currency,
			area, bedrooms, bathrooms, parking, property_type, transaction_type, images, description,
			source_ids, is_merged, merged_at, dedup_run_id, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			external_id = EXCLUDED.external_id,
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			city = EXCLUDED.city,
			zone = EXCLUDED.zone,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			area = EXCLUDED.area,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			parking = EXCLUDED.parking,
			property_type = EXCLUDED.property_type,
			transaction_type = EXCLUDED.transaction_type,
			images = EXCLUDED.images,
			description = EXCLUDED.description,
			source_ids = EXCLUDED.source_ids,
			is_merged = EXCLUDED.is_merged,
			merged_at = EXCLUDED.merged_at,
			dedup_run_id = EXCLUDED.dedup_run_id,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, l := range listings {
		sourceIDs := l.SourceIDs
		if sourceIDs == nil {
			sourceIDs = []models.SourceRef{l.Ref()}
		}
		batch.Queue(query,
			CanonicalKey(l), l.Source, l.ExternalID, l.URL, l.Title, l.City, l.Zone, l.Price, l.Currency,
			l.Area, l.Bedrooms, l.Bathrooms, l.Parking, l.PropertyType, l.TransactionType, l.Images, l.Description,
			sourceIDs, l.IsMerged, l.MergedAt, runID,
		)
	}

	return s.pool.SendBatch(ctx, batch).Close()
}

// PruneCanonicalListings removes canonical rows a full run did not produce.
func (s *PostgresStore) PruneCanonicalListings(ctx context.Context, runID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM canonical_listings WHERE dedup_run_id <> $1`, runID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// Property Matches
// =============================================================================

// InsertPropertyMatch records a candidate pair. A pair already recorded is
// left untouched.
func (s *PostgresStore) InsertPropertyMatch(ctx context.Context, pm *models.PropertyMatch) error {
	query := `
		INSERT INTO property_matches (
			id, source, external_id, matched_source, matched_external_id,
			confidence, match_reasons, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source, external_id, matched_source, matched_external_id) DO NOTHING
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		pm.ID, pm.Source, pm.ExternalID, pm.MatchedSource, pm.MatchedExternalID,
		pm.Confidence, pm.MatchReasons, pm.Status, pm.CreatedAt,
	).Scan(&pm.ID)

	if err == pgx.ErrNoRows {
		return nil // conflict, no insert
	}
	return err
}
