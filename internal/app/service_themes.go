package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"algomap/api/internal/rbac"
	"algomap/api/internal/search"
	"algomap/api/internal/store"
	"algomap/api/internal/util"
)

// ThemeInput is the write shape for shared themes.
type ThemeInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Difficulty  string           `json:"difficulty"`
	Tags        []string         `json:"tags"`
	IsPublic    *bool            `json:"isPublic"`
	Subtopics   []store.Subtopic `json:"subtopics"`
	SortOrder   *int             `json:"order"`
}

func (s *Service) ListThemes(ctx context.Context) ([]map[string]any, error) {
	themes, err := s.store.ListPublicThemes(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(themes))
	for _, theme := range themes {
		items = append(items, themePayload(theme))
	}
	return items, nil
}

func (s *Service) GetTheme(ctx context.Context, themeID string) (map[string]any, error) {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	return themePayload(theme), nil
}

func (s *Service) CreateTheme(ctx context.Context, session Session, input ThemeInput) (map[string]any, error) {
	if err := validateThemeInput(input, true); err != nil {
		return nil, err
	}

	theme := store.Theme{
		ID:          util.NewID("thm"),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Category:    defaultString(input.Category, "other"),
		Difficulty:  defaultString(input.Difficulty, "beginner"),
		Tags:        normalizeTags(input.Tags),
		CreatedBy:   session.UserID,
		CreatorName: session.UserName,
		IsPublic:    input.IsPublic == nil || *input.IsPublic,
		Subtopics:   prepareSubtopics(input.Subtopics),
	}
	if input.SortOrder != nil {
		theme.SortOrder = *input.SortOrder
	}

	if err := s.store.InsertTheme(ctx, theme); err != nil {
		return nil, err
	}

	if err := s.history.EnsureThemeRepo(theme.ID, session.UserName); err != nil {
		return nil, err
	}
	for _, sub := range theme.Subtopics {
		if _, err := s.history.RecordSubtopic(theme.ID, sub, session.UserName, "Add subtopic "+sub.Name); err != nil {
			return nil, err
		}
	}

	s.indexTheme(theme)
	created, err := s.store.GetTheme(ctx, theme.ID)
	if err != nil {
		return nil, err
	}
	return themePayload(created), nil
}

// UpdateTheme replaces the shared document. Only the creator or an admin may
// write; last write wins.
func (s *Service) UpdateTheme(ctx context.Context, session Session, themeID string, input ThemeInput) (map[string]any, error) {
	current, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanMutateShared(rbac.Normalize(session.Role), session.UserID, current.CreatedBy) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator or an admin can modify this theme", nil)
	}
	if err := validateThemeInput(input, true); err != nil {
		return nil, err
	}

	next := current
	next.Name = strings.TrimSpace(input.Name)
	next.Description = strings.TrimSpace(input.Description)
	next.Category = defaultString(input.Category, current.Category)
	next.Difficulty = defaultString(input.Difficulty, current.Difficulty)
	next.Tags = normalizeTags(input.Tags)
	if input.IsPublic != nil {
		next.IsPublic = *input.IsPublic
	}
	if input.SortOrder != nil {
		next.SortOrder = *input.SortOrder
	}
	next.Subtopics = prepareSubtopics(input.Subtopics)

	if err := s.store.UpdateTheme(ctx, next); err != nil {
		return nil, err
	}

	if err := s.history.EnsureThemeRepo(themeID, session.UserName); err != nil {
		return nil, err
	}
	for _, sub := range next.Subtopics {
		before, existed := current.FindSubtopic(sub.Name)
		if existed && sharedContentEqual(before, sub) {
			continue
		}
		message := "Update subtopic " + sub.Name
		if !existed {
			message = "Add subtopic " + sub.Name
		}
		if _, err := s.history.RecordSubtopic(themeID, sub, session.UserName, message); err != nil {
			return nil, err
		}
	}

	s.indexTheme(next)
	updated, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	return themePayload(updated), nil
}

// DeleteTheme removes the shared theme. Personal nodes that reference it are
// kept and surface with a null theme on roadmap reads.
func (s *Service) DeleteTheme(ctx context.Context, session Session, themeID string) error {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return err
	}
	if !rbac.CanMutateShared(rbac.Normalize(session.Role), session.UserID, theme.CreatedBy) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator or an admin can delete this theme", nil)
	}
	if err := s.store.DeleteTheme(ctx, themeID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTheme(themeID)
	}
	return nil
}

// UpdateSharedSubtopic rewrites the shared content of one subtopic. This is
// the edit every user sees; personal overlays are untouched.
func (s *Service) UpdateSharedSubtopic(ctx context.Context, session Session, themeID, subtopicName string, input store.Subtopic) (map[string]any, error) {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanMutateShared(rbac.Normalize(session.Role), session.UserID, theme.CreatedBy) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator or an admin can edit shared content", nil)
	}

	index := -1
	for i, sub := range theme.Subtopics {
		if sub.Name == subtopicName {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Subtopic not found", nil)
	}
	if err := validateSubtopic(input); err != nil {
		return nil, err
	}

	next := theme.Subtopics[index]
	next.Description = strings.TrimSpace(input.Description)
	next.Theory = input.Theory
	next.CodeSnippets = input.CodeSnippets
	next.Problems = input.Problems
	next.Resources = input.Resources
	theme.Subtopics[index] = next

	if err := s.store.UpdateThemeSubtopics(ctx, themeID, theme.Subtopics); err != nil {
		return nil, err
	}
	if err := s.history.EnsureThemeRepo(themeID, session.UserName); err != nil {
		return nil, err
	}
	if _, err := s.history.RecordSubtopic(themeID, next, session.UserName, "Update subtopic "+next.Name); err != nil {
		return nil, err
	}
	s.indexTheme(theme)

	return subtopicPayload(next), nil
}

// DeleteSubtopicGlobal removes a subtopic from the shared theme and strips
// every user's overlay for it. Admin only.
func (s *Service) DeleteSubtopicGlobal(ctx context.Context, session Session, themeID, subtopicName string) error {
	if !rbac.IsAdmin(rbac.Normalize(session.Role)) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can delete a subtopic globally", nil)
	}
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return err
	}
	if _, ok := theme.FindSubtopic(subtopicName); !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Subtopic not found", nil)
	}

	kept := make([]store.Subtopic, 0, len(theme.Subtopics)-1)
	for _, sub := range theme.Subtopics {
		if sub.Name == subtopicName {
			continue
		}
		kept = append(kept, sub)
	}
	if err := s.store.UpdateThemeSubtopics(ctx, themeID, kept); err != nil {
		return err
	}
	if err := s.store.RemoveOverlaysByName(ctx, themeID, subtopicName); err != nil {
		return err
	}
	if err := s.history.RemoveSubtopic(themeID, subtopicName, session.UserName); err != nil {
		return err
	}
	return nil
}

// ReorderSubtopics assigns new order values to a theme's shared subtopics.
// Every referenced subtopic must exist; a single unknown id rejects the
// whole batch.
func (s *Service) ReorderSubtopics(ctx context.Context, session Session, themeID string, assignments []store.OrderAssignment) (map[string]any, error) {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanMutateShared(rbac.Normalize(session.Role), session.UserID, theme.CreatedBy) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator or an admin can reorder subtopics", nil)
	}
	if len(assignments) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "order assignments are required", nil)
	}

	byID := make(map[string]int, len(theme.Subtopics))
	for i, sub := range theme.Subtopics {
		byID[sub.ID] = i
	}
	for _, assignment := range assignments {
		if _, ok := byID[assignment.ID]; !ok {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("subtopic %s does not exist in this theme", assignment.ID), nil)
		}
	}
	for _, assignment := range assignments {
		theme.Subtopics[byID[assignment.ID]].Order = assignment.Order
	}
	sort.SliceStable(theme.Subtopics, func(i, j int) bool {
		return theme.Subtopics[i].Order < theme.Subtopics[j].Order
	})

	if err := s.store.UpdateThemeSubtopics(ctx, themeID, theme.Subtopics); err != nil {
		return nil, err
	}
	return themePayload(theme), nil
}

// SearchThemes queries public themes by name, description, and tags.
func (s *Service) SearchThemes(ctx context.Context, text, category, difficulty string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:             text,
		FilterCategory:   category,
		FilterDifficulty: difficulty,
		Limit:            limit,
		Offset:           offset,
	}), nil
}

// SubtopicHistory lists revisions of a subtopic's shared content.
func (s *Service) SubtopicHistory(ctx context.Context, themeID, subtopicName string, limit int) ([]map[string]any, error) {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if _, ok := theme.FindSubtopic(subtopicName); !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Subtopic not found", nil)
	}
	revisions, err := s.history.History(themeID, subtopicName, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(revisions))
	for _, revision := range revisions {
		items = append(items, map[string]any{
			"hash":      revision.Hash,
			"message":   strings.TrimSpace(revision.Message),
			"author":    revision.Author,
			"createdAt": revision.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) indexTheme(theme store.Theme) {
	if s.search == nil {
		return
	}
	s.search.IndexTheme(search.ThemeRecord{
		ID:          theme.ID,
		Name:        theme.Name,
		Description: theme.Description,
		Category:    theme.Category,
		Difficulty:  theme.Difficulty,
		Tags:        theme.Tags,
	}, theme.IsPublic)
}

func validateThemeInput(input ThemeInput, requireName bool) error {
	if requireName && strings.TrimSpace(input.Name) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}
	if input.Category != "" && !contains(store.ThemeCategories, input.Category) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("category must be one of %s", strings.Join(store.ThemeCategories, ", ")), nil)
	}
	if input.Difficulty != "" && !contains(store.ThemeDifficulties, input.Difficulty) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("difficulty must be one of %s", strings.Join(store.ThemeDifficulties, ", ")), nil)
	}

	seen := make(map[string]bool, len(input.Subtopics))
	for _, sub := range input.Subtopics {
		name := strings.TrimSpace(sub.Name)
		if name == "" {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "every subtopic needs a name", nil)
		}
		if seen[name] {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("duplicate subtopic name %q", name), nil)
		}
		seen[name] = true
		if err := validateSubtopic(sub); err != nil {
			return err
		}
	}
	return nil
}

func validateSubtopic(sub store.Subtopic) error {
	for _, snippet := range sub.CodeSnippets {
		if !contains(store.SnippetLanguages, snippet.Language) {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("snippet language must be one of %s", strings.Join(store.SnippetLanguages, ", ")), nil)
		}
	}
	for _, problem := range sub.Problems {
		if strings.TrimSpace(problem.Title) == "" {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "every linked problem needs a title", nil)
		}
		if problem.Difficulty != "" && !contains(store.ProblemDifficulties, problem.Difficulty) {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("problem difficulty must be one of %s", strings.Join(store.ProblemDifficulties, ", ")), nil)
		}
	}
	for _, resource := range sub.Resources {
		if strings.TrimSpace(resource.Link) == "" {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "every resource needs a link", nil)
		}
	}
	return nil
}

// prepareSubtopics trims names, assigns ids where missing, and clears
// personal fields that have no business in shared content. A batch with no
// explicit orders (all zero) is positioned by slice index; explicit orders
// are kept verbatim, zeros included.
func prepareSubtopics(subtopics []store.Subtopic) []store.Subtopic {
	explicit := hasExplicitOrder(subtopics)
	prepared := make([]store.Subtopic, 0, len(subtopics))
	for i, sub := range subtopics {
		sub.Name = strings.TrimSpace(sub.Name)
		if sub.ID == "" {
			sub.ID = util.NewID("sub")
		}
		sub.Notes = ""
		if !explicit {
			sub.Order = i
		}
		prepared = append(prepared, sub)
	}
	sort.SliceStable(prepared, func(i, j int) bool { return prepared[i].Order < prepared[j].Order })
	return prepared
}

func hasExplicitOrder(subtopics []store.Subtopic) bool {
	for _, sub := range subtopics {
		if sub.Order != 0 {
			return true
		}
	}
	return false
}

func sharedContentEqual(a, b store.Subtopic) bool {
	if a.Description != b.Description || a.Theory != b.Theory {
		return false
	}
	if len(a.CodeSnippets) != len(b.CodeSnippets) || len(a.Problems) != len(b.Problems) || len(a.Resources) != len(b.Resources) {
		return false
	}
	for i := range a.CodeSnippets {
		if a.CodeSnippets[i] != b.CodeSnippets[i] {
			return false
		}
	}
	for i := range a.Problems {
		if a.Problems[i] != b.Problems[i] {
			return false
		}
	}
	for i := range a.Resources {
		if a.Resources[i] != b.Resources[i] {
			return false
		}
	}
	return true
}

func themePayload(theme store.Theme) map[string]any {
	subtopics := make([]map[string]any, 0, len(theme.Subtopics))
	for _, sub := range theme.Subtopics {
		subtopics = append(subtopics, subtopicPayload(sub))
	}
	return map[string]any{
		"id":          theme.ID,
		"name":        theme.Name,
		"description": theme.Description,
		"category":    theme.Category,
		"difficulty":  theme.Difficulty,
		"tags":        nonNilStrings(theme.Tags),
		"createdBy":   theme.CreatedBy,
		"creatorName": theme.CreatorName,
		"isPublic":    theme.IsPublic,
		"subtopics":   subtopics,
		"order":       theme.SortOrder,
		"createdAt":   theme.CreatedAt,
		"updatedAt":   theme.UpdatedAt,
	}
}

func subtopicPayload(sub store.Subtopic) map[string]any {
	payload := map[string]any{
		"id":          sub.ID,
		"name":        sub.Name,
		"description": sub.Description,
		"theory":      sub.Theory,
		"order":       sub.Order,
	}
	if sub.Notes != "" {
		payload["personalNotes"] = sub.Notes
	}
	if len(sub.CodeSnippets) > 0 {
		payload["codeSnippets"] = sub.CodeSnippets
	}
	if len(sub.Problems) > 0 {
		payload["problems"] = sub.Problems
	}
	if len(sub.Resources) > 0 {
		payload["resources"] = sub.Resources
	}
	return payload
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return normalized
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
