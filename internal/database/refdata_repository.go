package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/content-scheduler/internal/refdata"
)

// RefdataRepository implements refdata.Provider against PostgreSQL.
// An empty id set resolves to all active rows of that reference type.
type RefdataRepository struct {
	db *sqlx.DB
}

// NewRefdataRepository creates a new repository
func NewRefdataRepository(db *sqlx.DB) *RefdataRepository {
	return &RefdataRepository{db: db}
}

// Countries returns the matching active countries.
func (r *RefdataRepository) Countries(ctx context.Context, ids []int64) ([]refdata.Country, error) {
	query := `
		SELECT id, code, name, primary_language_id
		FROM countries
		WHERE is_active = true
		  AND (cardinality($1::bigint[]) = 0 OR id = ANY($1))
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query countries: %w", err)
	}
	defer rows.Close()

	countries := make([]refdata.Country, 0)
	for rows.Next() {
		var c refdata.Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.PrimaryLanguageID); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

// Languages returns the matching active languages.
func (r *RefdataRepository) Languages(ctx context.Context, ids []int64) ([]refdata.Language, error) {
	query := `
		SELECT id, code, name
		FROM languages
		WHERE is_active = true
		  AND (cardinality($1::bigint[]) = 0 OR id = ANY($1))
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()

	languages := make([]refdata.Language, 0)
	for rows.Next() {
		var l refdata.Language
		if err := rows.Scan(&l.ID, &l.Code, &l.Name); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		languages = append(languages, l)
	}
	return languages, rows.Err()
}

// Themes returns the matching active themes.
func (r *RefdataRepository) Themes(ctx context.Context, ids []int64) ([]refdata.Theme, error) {
	query := `
		SELECT id, name
		FROM themes
		WHERE is_active = true
		  AND (cardinality($1::bigint[]) = 0 OR id = ANY($1))
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	themes := make([]refdata.Theme, 0)
	for rows.Next() {
		var t refdata.Theme
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}
