package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries public themes with plainto_tsquery and ts_rank, using
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "t.is_public = TRUE AND t.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	if q.FilterCategory != "" {
		where += fmt.Sprintf(" AND t.category = $%d", argN)
		args = append(args, q.FilterCategory)
		argN++
	}
	if q.FilterDifficulty != "" {
		where += fmt.Sprintf(" AND t.difficulty = $%d", argN)
		args = append(args, q.FilterDifficulty)
		argN++
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM themes t WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT t.id, t.name,
			ts_headline('english', coalesce(t.description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			t.category, t.difficulty, t.tags::text
		FROM themes t
		WHERE %s
		ORDER BY ts_rank(t.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var tagsRaw string
		if err := rows.Scan(&r.ID, &r.Name, &r.Snippet, &r.Category, &r.Difficulty, &tagsRaw); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsRaw), &r.Tags); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode tags: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every public theme for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ThemeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, category, difficulty, tags::text
		FROM themes WHERE is_public = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}
	defer rows.Close()

	themes := make([]ThemeRecord, 0)
	for rows.Next() {
		var t ThemeRecord
		var tagsRaw string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Difficulty, &tagsRaw); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsRaw), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode theme tags: %w", err)
		}
		themes = append(themes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}

	return themes, nil
}
