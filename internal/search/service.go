package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTheme indexes a public theme (fire-and-forget to Meilisearch).
// Private themes are removed from the index instead.
func (s *Service) IndexTheme(theme ThemeRecord, isPublic bool) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if !isPublic {
			if err := s.meili.DeleteTheme(theme.ID); err != nil {
				log.Printf("search: unindex theme %s: %v", theme.ID, err)
			}
			return
		}
		if err := s.meili.IndexTheme(theme); err != nil {
			log.Printf("search: index theme %s: %v", theme.ID, err)
		}
	}()
}

// DeleteTheme removes a theme from the search index (fire-and-forget).
func (s *Service) DeleteTheme(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTheme(id); err != nil {
			log.Printf("search: delete theme %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes every public theme from PostgreSQL into
// Meilisearch. Called once at startup when Meilisearch is configured.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	themes, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(themes) > 0 {
		if err := s.meili.IndexThemes(themes); err != nil {
			log.Printf("search: reindex themes: %v", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
