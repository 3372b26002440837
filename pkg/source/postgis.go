package source

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

// BBox is a rectangular area defined by two corners.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// PostGIS is a feature store backed by a PostGIS table.
type PostGIS struct {
	db *sql.DB
}

// OpenPostGIS creates a new PostGIS connection.
func OpenPostGIS(host, user, password, dbname string, port int) (*PostGIS, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostGIS{db: db}, nil
}

// InitSchema creates the features table.
func (p *PostGIS) InitSchema() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`DROP TABLE IF EXISTS features;`,

		`CREATE TABLE features (
			id BIGSERIAL PRIMARY KEY,
			location GEOMETRY(POINT, 4326),
			properties JSONB NOT NULL DEFAULT '{}'::jsonb
		);`,
	}

	for _, query := range queries {
		if _, err := p.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// CreateSpatialIndex creates a GIST index on the geometry column.
func (p *PostGIS) CreateSpatialIndex() error {
	query := `CREATE INDEX idx_features_location ON features USING GIST(location);`

	if _, err := p.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}

	// Analyze table for better query planning
	if _, err := p.db.Exec("ANALYZE features;"); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	return nil
}

// BulkInsertFeatures inserts features in batches for better performance.
func (p *PostGIS) BulkInsertFeatures(feats []feature.Feature) error {
	const batchSize = 10000

	stmt, err := p.db.Prepare(`
		INSERT INTO features (location, properties)
		VALUES (ST_SetSRID(ST_MakePoint($1, $2), 4326), $3)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStmt := tx.Stmt(stmt)

	for i := 0; i < len(feats); i++ {
		ft := feats[i]
		props, err := json.Marshal(ft.Properties)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode properties of feature %d: %w", i, err)
		}

		_, err = txStmt.Exec(ft.Geometry.Lon(), ft.Geometry.Lat(), props)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert feature %d: %w", i, err)
		}

		// Commit batch
		if (i+1)%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit batch: %w", err)
			}

			tx, err = p.db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin new transaction: %w", err)
			}
			txStmt = tx.Stmt(stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final batch: %w", err)
	}

	return nil
}

// Collection loads a materialized collection from the store, optionally
// restricted to a bounding box. Row order follows insertion order.
func (p *PostGIS) Collection(box *BBox) (feature.FeatureCollection, error) {
	query := `
		SELECT ST_X(location) as lon, ST_Y(location) as lat, properties
		FROM features
	`
	var args []any
	if box != nil {
		query += ` WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)`
		args = []any{box.MinLon, box.MinLat, box.MaxLon, box.MaxLat}
	}
	query += ` ORDER BY id`

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var feats []feature.Feature
	for rows.Next() {
		var lon, lat float64
		var rawProps []byte

		if err := rows.Scan(&lon, &lat, &rawProps); err != nil {
			return feature.FeatureCollection{}, fmt.Errorf("failed to scan row: %w", err)
		}

		props := map[string]any{}
		if len(rawProps) > 0 {
			if err := json.Unmarshal(rawProps, &props); err != nil {
				return feature.FeatureCollection{}, fmt.Errorf("failed to decode properties: %w", err)
			}
		}

		feats = append(feats, feature.New(feature.NewPoint(lon, lat), props))
	}

	if err := rows.Err(); err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("rows error: %w", err)
	}

	return feature.NewCollection(feats), nil
}

// Count returns the number of features in the store.
func (p *PostGIS) Count() (int64, error) {
	var count int64
	err := p.db.QueryRow("SELECT COUNT(*) FROM features").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (p *PostGIS) Close() error {
	return p.db.Close()
}
