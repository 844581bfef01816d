package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher against the places table as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL places searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches places by name prefix first, then by full-text rank, so
// typing "lis" surfaces Lisbon before places that merely mention it.
func (p *PgFTS) Search(q Query) ([]Place, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*) FROM places
		WHERE name ILIKE $1 || '%' OR fts @@ plainto_tsquery('simple', $1)
	`, text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, country, COALESCE(admin, ''), lat, lng
		FROM places
		WHERE name ILIKE $1 || '%' OR fts @@ plainto_tsquery('simple', $1)
		ORDER BY (name ILIKE $1 || '%') DESC,
			ts_rank(fts, plainto_tsquery('simple', $1)) DESC,
			population DESC
		LIMIT $2
	`, text, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	places := make([]Place, 0)
	for rows.Next() {
		var place Place
		if err := rows.Scan(&place.ID, &place.Name, &place.Country, &place.Admin, &place.Lat, &place.Lng); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		places = append(places, place)
	}
	return places, total, rows.Err()
}

// LoadAllPlaces returns every place row for full reindexing into Meilisearch.
func (p *PgFTS) LoadAllPlaces(ctx context.Context) ([]Place, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, country, COALESCE(admin, ''), lat, lng FROM places
	`)
	if err != nil {
		return nil, fmt.Errorf("load places: %w", err)
	}
	defer rows.Close()

	places := make([]Place, 0)
	for rows.Next() {
		var place Place
		if err := rows.Scan(&place.ID, &place.Name, &place.Country, &place.Admin, &place.Lat, &place.Lng); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		places = append(places, place)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return places, nil
}
